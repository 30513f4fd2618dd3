package signals

import (
	"regexp"
	"sort"
	"strings"
)

// Contacts are the contact channels found on a page.
type Contacts struct {
	Emails      []string `json:"emails"`
	Phones      []string `json:"phones"`
	SocialLinks []string `json:"social_links"`
}

var (
	emailRe   = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRe   = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	telLinkRe = regexp.MustCompile(`(?i)href\s*=\s*["']tel:([^"']+)["']`)
	mailtoRe  = regexp.MustCompile(`(?i)href\s*=\s*["']mailto:([^"'?]+)`)
	hrefRe    = regexp.MustCompile(`(?i)href\s*=\s*["'](https?://[^"'\s]+)["']`)
	// textURLRe finds bare and markdown links in reader output.
	textURLRe = regexp.MustCompile(`https?://[^\s()<>\[\]"']+`)
)

// socialHosts maps hosts to the platform they belong to.
var socialHosts = map[string]string{
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"instagram.com": "instagram",
	"linkedin.com":  "linkedin",
	"twitter.com":   "x",
	"x.com":         "x",
	"youtube.com":   "youtube",
	"tiktok.com":    "tiktok",
	"pinterest.com": "pinterest",
	"yelp.com":      "yelp",
	"nextdoor.com":  "nextdoor",
	"threads.net":   "threads",
}

// emailIgnore skips addresses that are asset names or placeholders.
var emailIgnore = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", "example.com", "sentry.io", "wixpress.com", "domain.com"}

// ExtractContacts collects emails, phone numbers and social profile links
// from raw HTML and plain or markdown text. Results are deduplicated and sorted.
func ExtractContacts(rawHTML, text string) Contacts {
	emails := map[string]bool{}
	phones := map[string]bool{}
	social := map[string]bool{}

	for _, m := range mailtoRe.FindAllStringSubmatch(rawHTML, -1) {
		addEmail(emails, m[1])
	}
	for _, src := range []string{text, stripTags(rawHTML)} {
		for _, e := range emailRe.FindAllString(src, -1) {
			addEmail(emails, e)
		}
		for _, p := range phoneRe.FindAllString(src, -1) {
			if n := NormalizePhone(p); n != "" {
				phones[n] = true
			}
		}
	}
	for _, m := range telLinkRe.FindAllStringSubmatch(rawHTML, -1) {
		if n := NormalizePhone(m[1]); n != "" {
			phones[n] = true
		}
	}
	for _, m := range hrefRe.FindAllStringSubmatch(rawHTML, -1) {
		addSocial(social, m[1])
	}
	for _, u := range textURLRe.FindAllString(text, -1) {
		addSocial(social, strings.TrimRight(u, ".,;"))
	}

	return Contacts{
		Emails:      sortedKeys(emails),
		Phones:      sortedKeys(phones),
		SocialLinks: sortedKeys(social),
	}
}

func addEmail(set map[string]bool, e string) {
	e = strings.ToLower(strings.TrimSpace(e))
	if e == "" || !strings.Contains(e, "@") {
		return
	}
	for _, ig := range emailIgnore {
		if strings.Contains(e, ig) {
			return
		}
	}
	set[e] = true
}

// NormalizePhone keeps digits and formats 10-digit North American numbers as
// (XXX) XXX-XXXX. Other lengths between 7 and 15 digits are returned as
// digits with a leading +.
func NormalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	switch {
	case len(d) == 10:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	case len(d) >= 7 && len(d) <= 15:
		return "+" + d
	}
	return ""
}

// SocialPlatform returns the platform name for a URL on a known social host.
func SocialPlatform(rawURL string) (string, bool) {
	host := Domain(rawURL)
	if host == "" {
		return "", false
	}
	for h, platform := range socialHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return platform, true
		}
	}
	return "", false
}

func addSocial(set map[string]bool, u string) {
	if _, ok := SocialPlatform(u); ok && isProfileLink(u) {
		set[strings.TrimRight(u, "/")] = true
	}
}

// isProfileLink drops share and intent links that are not profiles.
func isProfileLink(u string) bool {
	lower := strings.ToLower(u)
	for _, s := range []string{"/sharer", "/share", "/intent/", "/dialog/", "shareArticle", "/plugins/"} {
		if strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
