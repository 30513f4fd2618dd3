package signals

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/market-intel/internal/model"
)

// CTACandidate is a call to action found by scanning the DOM.
type CTACandidate struct {
	Type      model.CTAType `json:"type"`
	Label     string        `json:"label"`
	Target    string        `json:"target,omitempty"`
	Placement string        `json:"placement"`
	Selector  string        `json:"selector"`
}

// Placements.
const (
	PlacementHeader = "header"
	PlacementNav    = "nav"
	PlacementFooter = "footer"
	PlacementBody   = "body"
)

var ctaVerbRe = regexp.MustCompile(`(?i)\b(contact|book|schedule|appointment|quote|estimate|call|buy|shop|order|start|sign ?up|register|request|trial|demo|subscribe|get started|join|donate|reserve|apply|download|consult)`)

var messagingHosts = []string{"wa.me/", "api.whatsapp.com", "m.me/", "t.me/", "sms:", "signal.me/"}

// ScanCTAs parses rawHTML and returns CTA candidates in document order,
// deduplicated by type, target and label.
func ScanCTAs(rawHTML string) []CTACandidate {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return []CTACandidate{}
	}
	return scanCTAs(doc)
}

func scanCTAs(doc *html.Node) []CTACandidate {
	out := []CTACandidate{}
	seen := map[string]bool{}
	add := func(c CTACandidate) {
		c.Label = collapse(c.Label)
		key := string(c.Type) + "|" + strings.ToLower(c.Target) + "|" + strings.ToLower(c.Label)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return false
		case atom.A:
			if c, ok := anchorCTA(n); ok {
				add(c)
			}
		case atom.Button:
			if insideForm(n) {
				return true
			}
			if label := nodeText(n); label != "" && attr(n, "type") != "reset" {
				add(CTACandidate{Type: model.CTAButton, Label: label, Placement: placement(n), Selector: selector(n)})
			}
		case atom.Input:
			if insideForm(n) {
				return true
			}
			if t := strings.ToLower(attr(n, "type")); t == "submit" || t == "button" {
				if label := attr(n, "value"); label != "" {
					add(CTACandidate{Type: model.CTAButton, Label: label, Placement: placement(n), Selector: selector(n)})
				}
			}
		case atom.Form:
			label := formLabel(n)
			add(CTACandidate{Type: model.CTAForm, Label: label, Target: attr(n, "action"), Placement: placement(n), Selector: selector(n)})
		}
		return true
	})
	return out
}

func anchorCTA(n *html.Node) (CTACandidate, bool) {
	href := strings.TrimSpace(attr(n, "href"))
	label := nodeText(n)
	if label == "" {
		label = attr(n, "aria-label")
	}
	if label == "" {
		label = attr(n, "title")
	}
	c := CTACandidate{Label: label, Target: href, Placement: placement(n), Selector: selector(n)}
	lowerHref := strings.ToLower(href)

	switch {
	case strings.HasPrefix(lowerHref, "tel:"):
		c.Type = model.CTAPhone
		if c.Label == "" {
			c.Label = strings.TrimPrefix(href, "tel:")
		}
		return c, true
	case strings.HasPrefix(lowerHref, "mailto:"):
		c.Type = model.CTAEmail
		if c.Label == "" {
			c.Label = strings.TrimPrefix(href, "mailto:")
		}
		return c, true
	}
	for _, h := range messagingHosts {
		if strings.Contains(lowerHref, h) {
			c.Type = model.CTAMessaging
			if c.Label == "" {
				c.Label = "message"
			}
			return c, true
		}
	}

	if label == "" || !ctaVerbRe.MatchString(label) {
		return c, false
	}
	c.Type = model.CTALink
	if isButtonStyled(n) {
		c.Type = model.CTAButton
	}
	return c, true
}

func isButtonStyled(n *html.Node) bool {
	class := attr(n, "class")
	return attr(n, "role") == "button" || containsFold(class, "btn") || containsFold(class, "button") || containsFold(class, "cta")
}

func formLabel(form *html.Node) string {
	var label string
	walk(form, func(n *html.Node) bool {
		if label != "" {
			return false
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Button:
				label = nodeText(n)
			case atom.Input:
				if strings.EqualFold(attr(n, "type"), "submit") {
					label = attr(n, "value")
				}
			}
		}
		return true
	})
	if label == "" {
		label = "form"
	}
	return label
}

// insideForm reports whether n submits a form, which is recorded once as
// the form itself.
func insideForm(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Form {
			return true
		}
	}
	return false
}

// placement names the nearest landmark ancestor.
func placement(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch p.DataAtom {
		case atom.Header:
			return PlacementHeader
		case atom.Nav:
			return PlacementNav
		case atom.Footer:
			return PlacementFooter
		}
		switch strings.ToLower(attr(p, "role")) {
		case "banner":
			return PlacementHeader
		case "navigation":
			return PlacementNav
		case "contentinfo":
			return PlacementFooter
		}
	}
	return PlacementBody
}

// selector renders a short CSS-like path of the element for evidence.
func selector(n *html.Node) string {
	s := n.Data
	if id := attr(n, "id"); id != "" {
		return s + "#" + id
	}
	if class := strings.Fields(attr(n, "class")); len(class) > 0 {
		s += "." + class[0]
	}
	return s
}

func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return false
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
