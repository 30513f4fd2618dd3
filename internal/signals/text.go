package signals

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	invisibleBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript|svg|template)[^>]*>.*?</(?:script|style|noscript|svg|template)>`)
	tagRe            = regexp.MustCompile(`(?s)<[^>]+>`)
)

// stripTags removes invisible blocks and markup, leaving roughly the
// visible text. It is a cheap pre-pass for regex scans.
func stripTags(rawHTML string) string {
	s := invisibleBlockRe.ReplaceAllString(rawHTML, " ")
	s = tagRe.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

// blockAtoms end a line when converting to text.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Nav: true, atom.Blockquote: true, atom.Td: true, atom.Title: true,
}

// HTMLToText converts HTML into visible text, one block per line.
func HTMLToText(rawHTML string) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Template:
				if tt == html.StartTagToken {
					skip++
				}
			}
			if blockAtoms[tok.DataAtom] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Template:
				if skip > 0 {
					skip--
				}
			}
			if blockAtoms[tok.DataAtom] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = collapse(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Segment splits text into chunks of at most maxChars, breaking on line
// boundaries where possible.
func Segment(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var segs []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			segs = append(segs, s)
		}
		cur.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxChars {
			flush()
			cut := cutPoint(line, maxChars)
			segs = append(segs, strings.TrimSpace(line[:cut]))
			line = line[cut:]
		}
		if cur.Len()+len(line)+1 > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return segs
}

// cutPoint finds a split index at or below max that does not break a rune,
// preferring the last space.
func cutPoint(s string, max int) int {
	if idx := strings.LastIndexByte(s[:max], ' '); idx > max/2 {
		return idx
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}

// Excerpt returns at most maxChars of text, cut on a rune boundary with an
// ellipsis when truncated.
func Excerpt(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	return strings.TrimSpace(text[:cutPoint(text, maxChars)]) + "…"
}

// Domain returns the lowercase host of rawURL without "www." or a port.
// A bare host without a scheme is accepted.
func Domain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil || u.Host == "" {
			return ""
		}
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

var titleCaser = cases.Title(language.English)

// DomainToName derives a display name from the registrable label of a URL,
// e.g. "https://www.acme-widgets.com" becomes "Acme Widgets".
func DomainToName(rawURL string) string {
	host := Domain(rawURL)
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	label := strings.NewReplacer("-", " ", "_", " ").Replace(parts[0])
	return titleCaser.String(strings.TrimSpace(label))
}
