package signals

import (
	"regexp"
	"strings"

	"github.com/sells-group/market-intel/internal/model"
)

type trackingPattern struct {
	vendor string
	ad     bool
	re     *regexp.Regexp
}

// trackingPatterns match literal tracking identifiers. The first capture
// group is the identifier.
var trackingPatterns = []trackingPattern{
	{vendor: "google_analytics_4", re: regexp.MustCompile(`\b(G-[A-Z0-9]{6,12})\b`)},
	{vendor: "universal_analytics", re: regexp.MustCompile(`\b(UA-\d{4,10}-\d{1,4})\b`)},
	{vendor: "google_tag_manager", re: regexp.MustCompile(`\b(GTM-[A-Z0-9]{4,8})\b`)},
	{vendor: "hotjar", re: regexp.MustCompile(`hjid\s*:\s*(\d{5,10})`)},
	{vendor: "microsoft_clarity", re: regexp.MustCompile(`clarity\.ms/tag/([a-z0-9]{8,12})`)},
	{vendor: "segment", re: regexp.MustCompile(`analytics\.load\(\s*["']([A-Za-z0-9]{16,40})["']`)},
	{vendor: "hubspot", re: regexp.MustCompile(`js\.hs-scripts\.com/(\d{5,10})\.js`)},
	{vendor: "mixpanel", re: regexp.MustCompile(`mixpanel\.init\(\s*["']([a-f0-9]{32})["']`)},
	{vendor: "google_ads", ad: true, re: regexp.MustCompile(`\b(AW-\d{9,11})\b`)},
	{vendor: "meta_pixel", ad: true, re: regexp.MustCompile(`fbq\(\s*["']init["']\s*,\s*["'](\d{10,20})["']`)},
	{vendor: "linkedin_insight", ad: true, re: regexp.MustCompile(`_linkedin_partner_id\s*=\s*["']?(\d{5,10})`)},
	{vendor: "tiktok_pixel", ad: true, re: regexp.MustCompile(`ttq\.load\(\s*["']([A-Z0-9]{15,25})["']`)},
	{vendor: "bing_uet", ad: true, re: regexp.MustCompile(`\bti\s*:\s*["'](\d{6,10})["']`)},
	{vendor: "pinterest_tag", ad: true, re: regexp.MustCompile(`pintrk\(\s*["']load["']\s*,\s*["'](\d{10,16})["']`)},
}

// ScanTracking finds analytics and ad-platform identifiers in raw HTML.
// Each (vendor, id) pair appears once, in pattern order.
func ScanTracking(rawHTML string) model.TrackingStack {
	stack := model.TrackingStack{Analytics: []model.TrackingID{}, AdPlatforms: []model.TrackingID{}}
	seen := map[string]bool{}

	for _, p := range trackingPatterns {
		for _, m := range p.re.FindAllStringSubmatch(rawHTML, -1) {
			id := m[1]
			key := p.vendor + "|" + id
			if seen[key] {
				continue
			}
			seen[key] = true
			tid := model.TrackingID{Vendor: p.vendor, ID: id}
			if p.ad {
				stack.AdPlatforms = append(stack.AdPlatforms, tid)
			} else {
				stack.Analytics = append(stack.Analytics, tid)
			}
		}
	}
	return stack
}

// TrackingVendors returns the distinct vendor names in stack.
func TrackingVendors(stack model.TrackingStack) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]model.TrackingID{stack.Analytics, stack.AdPlatforms} {
		for _, t := range list {
			if !seen[t.Vendor] {
				seen[t.Vendor] = true
				out = append(out, t.Vendor)
			}
		}
	}
	return out
}

// TrackingCount returns the number of identifiers in stack.
func TrackingCount(stack model.TrackingStack) int {
	return len(stack.Analytics) + len(stack.AdPlatforms)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
