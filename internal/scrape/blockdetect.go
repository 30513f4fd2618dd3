package scrape

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// Block names the anti-bot defense that answered instead of the site.
type Block string

const (
	BlockNone        Block = ""
	BlockRateLimited Block = "rate_limited"
	BlockCloudflare  Block = "cloudflare"
	BlockWAF         Block = "waf"
	BlockCaptcha     Block = "captcha"
	BlockJSShell     Block = "js_shell"
)

// BlockedError reports a response that was a bot wall.
type BlockedError struct {
	URL   string
	Block Block
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by %s: %s", e.Block, e.URL)
}

// wafHeaders are response headers set by bot-management vendors other than
// Cloudflare. Seeing one on a 4xx/5xx means the vendor answered.
var wafHeaders = []string{
	"X-Datadome",
	"X-Sucuri-Id",
	"X-Iinfo", // Imperva
	"X-Px-Block",
	"Akamai-Grn",
}

// shellLimit is the body size below which a noscript or refresh page is
// treated as a JavaScript shell rather than content.
const shellLimit = 2000

// bodyMarker maps a lowercase body substring to the block it indicates.
// Order matters: the first hit wins.
var bodyMarkers = []struct {
	marker string
	block  Block
}{
	{"checking your browser", BlockCloudflare},
	{"cf-browser-verification", BlockCloudflare},
	{"cf-turnstile", BlockCloudflare},
	{"/cdn-cgi/challenge-platform/", BlockCloudflare},
	{"g-recaptcha", BlockCaptcha},
	{"h-captcha", BlockCaptcha},
	{"captcha", BlockCaptcha},
	{"datadome", BlockWAF},
	{"incapsula incident", BlockWAF},
	{"sucuri website firewall", BlockWAF},
}

// DetectBlock inspects a response for a bot wall. Status and headers are
// checked before the body.
func DetectBlock(status int, header http.Header, body []byte) Block {
	if status == http.StatusTooManyRequests {
		return BlockRateLimited
	}
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("Cf-Ray") != "" || header.Get("Cf-Mitigated") != "" ||
			strings.EqualFold(header.Get("Server"), "cloudflare") {
			return BlockCloudflare
		}
		for _, h := range wafHeaders {
			if header.Get(h) != "" {
				return BlockWAF
			}
		}
		if strings.HasPrefix(strings.ToLower(header.Get("Server")), "akamaighost") {
			return BlockWAF
		}
	}

	lower := bytes.ToLower(body)
	for _, m := range bodyMarkers {
		if bytes.Contains(lower, []byte(m.marker)) {
			return m.block
		}
	}
	if bytes.Contains(lower, []byte("cloudflare")) && bytes.Contains(lower, []byte("challenge")) {
		return BlockCloudflare
	}

	if len(body) < shellLimit {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
			return BlockJSShell
		}
		if bytes.Contains(lower, []byte(`http-equiv="refresh"`)) {
			return BlockJSShell
		}
	}
	return BlockNone
}

// challengePhrases appear on interstitials that reader services pass
// through as if they were content.
var challengePhrases = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
	"verify you are human",
}

const (
	minUsableText   = 100
	trustedTextSize = 1000
)

// IsChallengeText reports whether extracted text is too short to use or
// reads like a challenge page. Text of trustedTextSize or more is accepted
// as is, since real pages mention these phrases in passing.
func IsChallengeText(text string) bool {
	content := strings.TrimSpace(text)
	switch {
	case len(content) < minUsableText:
		return true
	case len(content) >= trustedTextSize:
		return false
	}
	lower := strings.ToLower(content)
	for _, p := range challengePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
