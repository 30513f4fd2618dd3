// Package signals extracts deterministic, pattern-matched facts from page
// HTML and text: structured metadata, contacts, tracking identifiers, CTAs,
// forms and chat or booking vendors.
package signals

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

// Structured holds metadata embedded in the page head and JSON-LD blocks.
type Structured struct {
	Name            string   `json:"name,omitempty"`
	NameSource      string   `json:"name_source,omitempty"`
	Type            string   `json:"type,omitempty"`
	Description     string   `json:"description,omitempty"`
	Street          string   `json:"street,omitempty"`
	City            string   `json:"city,omitempty"`
	Region          string   `json:"region,omitempty"`
	PostalCode      string   `json:"postal_code,omitempty"`
	Country         string   `json:"country,omitempty"`
	Telephone       string   `json:"telephone,omitempty"`
	Email           string   `json:"email,omitempty"`
	SameAs          []string `json:"same_as,omitempty"`
	Title           string   `json:"title,omitempty"`
	OGSiteName      string   `json:"og_site_name,omitempty"`
	OGTitle         string   `json:"og_title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
}

// Name sources, in priority order.
const (
	SourceJSONLD     = "json_ld"
	SourceOGSiteName = "og:site_name"
	SourceOGTitle    = "og:title"
	SourceTitle      = "title"
	SourceDomain     = "domain"
)

// Location renders "City, Region" from whatever parts are known.
func (s Structured) Location() string {
	switch {
	case s.City != "" && s.Region != "":
		return s.City + ", " + s.Region
	case s.City != "":
		return s.City
	default:
		return s.Region
	}
}

// Empty reports whether nothing was found.
func (s Structured) Empty() bool {
	return s.Name == "" && s.Type == "" && s.Location() == "" && s.Title == "" && s.OGSiteName == ""
}

// ExtractStructured reads JSON-LD organization markup, OpenGraph tags and the
// title. The name priority is JSON-LD, og:site_name, og:title, <title>, then
// the domain.
func ExtractStructured(rawHTML, pageURL string) Structured {
	var s Structured

	s.OGSiteName = strings.TrimSpace(MetaContent(rawHTML, "og:site_name"))
	s.OGTitle = strings.TrimSpace(MetaContent(rawHTML, "og:title"))
	s.MetaDescription = strings.TrimSpace(MetaContent(rawHTML, "description"))
	s.Title = Title(rawHTML)

	if org, ok := extractJSONLDOrg(rawHTML); ok {
		s.Name = strings.TrimSpace(org.Name)
		s.Type = org.typeName()
		s.Description = strings.TrimSpace(org.Description)
		s.Telephone = strings.TrimSpace(org.Telephone)
		s.Email = strings.TrimPrefix(strings.TrimSpace(org.Email), "mailto:")
		s.SameAs = org.sameAs()
		s.Street, s.City, s.Region, s.PostalCode, s.Country = org.address()
		if s.Name != "" {
			s.NameSource = SourceJSONLD
		}
	}

	if s.Name == "" && s.OGSiteName != "" {
		s.Name, s.NameSource = s.OGSiteName, SourceOGSiteName
	}
	if s.Name == "" && s.OGTitle != "" {
		if n := CleanTitle(s.OGTitle); n != "" {
			s.Name, s.NameSource = n, SourceOGTitle
		}
	}
	if s.Name == "" && s.Title != "" {
		if n := CleanTitle(s.Title); n != "" {
			s.Name, s.NameSource = n, SourceTitle
		}
	}
	if s.Name == "" {
		if n := DomainToName(pageURL); n != "" {
			s.Name, s.NameSource = n, SourceDomain
		}
	}
	if s.Description == "" {
		s.Description = s.MetaDescription
	}
	return s
}

var metaContentRe = regexp.MustCompile(`(?i)<meta\s[^>]*?(?:property|name)\s*=\s*["']([^"']+)["'][^>]*?content\s*=\s*["']([^"']*?)["']`)
var metaContentRevRe = regexp.MustCompile(`(?i)<meta\s[^>]*?content\s*=\s*["']([^"']*?)["'][^>]*?(?:property|name)\s*=\s*["']([^"']+)["']`)

// MetaContent returns the content of a <meta> tag by property or name.
func MetaContent(rawHTML, name string) string {
	lowerName := strings.ToLower(name)
	for _, m := range metaContentRe.FindAllStringSubmatch(rawHTML, -1) {
		if strings.ToLower(m[1]) == lowerName {
			return html.UnescapeString(m[2])
		}
	}
	for _, m := range metaContentRevRe.FindAllStringSubmatch(rawHTML, -1) {
		if strings.ToLower(m[2]) == lowerName {
			return html.UnescapeString(m[1])
		}
	}
	return ""
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Title returns the text of the <title> tag.
func Title(rawHTML string) string {
	m := titleRe.FindStringSubmatch(rawHTML)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

var titleSuffixes = []string{
	" - Home", " | Home", " - Homepage", " | Homepage",
	" - Official Site", " | Official Site", " - Official Website", " | Official Website",
	" - Welcome", " | Welcome",
}

// CleanTitle strips boilerplate from a page title and keeps the first
// segment of a separated title.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	for _, suffix := range titleSuffixes {
		if strings.HasSuffix(strings.ToLower(title), strings.ToLower(suffix)) {
			title = title[:len(title)-len(suffix)]
			break
		}
	}
	for _, sep := range []string{" | ", " - ", " — ", " – ", " :: "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return strings.TrimSpace(title)
}

type jsonLDOrg struct {
	Type        any               `json:"@type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Telephone   string            `json:"telephone"`
	Email       string            `json:"email"`
	Address     any               `json:"address"`
	SameAs      any               `json:"sameAs"`
	Graph       []json.RawMessage `json:"@graph"`
}

func (o jsonLDOrg) typeName() string {
	switch t := o.Type.(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && isOrgType(s) {
				return s
			}
		}
	}
	return ""
}

func (o jsonLDOrg) sameAs() []string {
	switch v := o.SameAs.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (o jsonLDOrg) address() (street, city, region, postal, country string) {
	switch addr := o.Address.(type) {
	case map[string]any:
		street = str(addr["streetAddress"])
		city = str(addr["addressLocality"])
		region = str(addr["addressRegion"])
		postal = str(addr["postalCode"])
		switch c := addr["addressCountry"].(type) {
		case string:
			country = c
		case map[string]any:
			country = str(c["name"])
		}
	case []any:
		if len(addr) > 0 {
			return jsonLDOrg{Address: addr[0]}.address()
		}
	case string:
		// "City, ST" or "Street, City, ST 12345"
		parts := strings.Split(addr, ",")
		if len(parts) >= 2 {
			city = strings.TrimSpace(parts[len(parts)-2])
			region = strings.TrimSpace(parts[len(parts)-1])
			if len(parts) >= 3 {
				street = strings.TrimSpace(parts[0])
			}
		}
	}
	return strings.TrimSpace(street), strings.TrimSpace(city), strings.TrimSpace(region),
		strings.TrimSpace(postal), strings.TrimSpace(country)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

var jsonLDRe = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)

// extractJSONLDOrg returns the first organization-typed JSON-LD object,
// looking inside arrays and @graph containers.
func extractJSONLDOrg(rawHTML string) (jsonLDOrg, bool) {
	for _, m := range jsonLDRe.FindAllStringSubmatch(rawHTML, -1) {
		if org, ok := findOrg([]byte(strings.TrimSpace(m[1])), 0); ok {
			return org, true
		}
	}
	return jsonLDOrg{}, false
}

func findOrg(raw []byte, depth int) (jsonLDOrg, bool) {
	if depth > 3 || len(raw) == 0 {
		return jsonLDOrg{}, false
	}
	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return jsonLDOrg{}, false
		}
		for _, item := range arr {
			if org, ok := findOrg(item, depth+1); ok {
				return org, true
			}
		}
		return jsonLDOrg{}, false
	}

	var org jsonLDOrg
	if err := json.Unmarshal(raw, &org); err != nil {
		return jsonLDOrg{}, false
	}
	if isOrgType(org.typeName()) && org.Name != "" {
		return org, true
	}
	for _, item := range org.Graph {
		if found, ok := findOrg(item, depth+1); ok {
			return found, true
		}
	}
	return jsonLDOrg{}, false
}

// orgTypes are schema.org types that describe the business itself.
var orgTypes = map[string]bool{
	"organization":                true,
	"localbusiness":               true,
	"corporation":                 true,
	"professionalservice":         true,
	"store":                       true,
	"restaurant":                  true,
	"medicalbusiness":             true,
	"legalservice":                true,
	"homeandconstructionbusiness": true,
}

func isOrgType(t string) bool {
	lower := strings.ToLower(t)
	return orgTypes[lower] || strings.HasSuffix(lower, "business") || strings.HasSuffix(lower, "service")
}
