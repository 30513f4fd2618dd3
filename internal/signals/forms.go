package signals

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/market-intel/internal/model"
)

// Field semantics recognized in forms.
const (
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldName    = "name"
	FieldCompany = "company"
	FieldMessage = "message"
	FieldAddress = "address"
	FieldDate    = "date"
	FieldBudget  = "budget"
	FieldService = "service"
	FieldOther   = "other"
)

// fieldHints maps substrings of a field's name, id, placeholder or label to
// its semantic. Order matters: "company_name" is a company, not a name.
var fieldHints = []struct {
	semantic string
	hints    []string
}{
	{FieldEmail, []string{"email", "e-mail"}},
	{FieldPhone, []string{"phone", "tel", "mobile", "cell"}},
	{FieldCompany, []string{"company", "business", "organization", "organisation", "org_name"}},
	{FieldName, []string{"name", "first", "last", "fname", "lname"}},
	{FieldMessage, []string{"message", "comment", "details", "inquiry", "enquiry", "question", "description"}},
	{FieldAddress, []string{"address", "street", "city", "zip", "postal"}},
	{FieldDate, []string{"date", "time", "when"}},
	{FieldBudget, []string{"budget", "price", "amount"}},
	{FieldService, []string{"service", "interest", "product", "project"}},
}

// ScanForms parses rawHTML and summarizes each form by the semantic fields
// it collects. Hidden and submit inputs are ignored.
func ScanForms(rawHTML string) []model.FormSummary {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return []model.FormSummary{}
	}
	return scanForms(doc)
}

func scanForms(doc *html.Node) []model.FormSummary {
	out := []model.FormSummary{}
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Form {
			out = append(out, summarizeForm(n))
			return false
		}
		return true
	})
	return out
}

func summarizeForm(form *html.Node) model.FormSummary {
	set := map[string]bool{}
	walk(form, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Input:
			t := strings.ToLower(attr(n, "type"))
			switch t {
			case "hidden", "submit", "button", "reset", "image":
				return true
			case "email":
				set[FieldEmail] = true
				return true
			case "tel":
				set[FieldPhone] = true
				return true
			case "date", "datetime-local", "time":
				set[FieldDate] = true
				return true
			}
			set[ClassifyField(fieldDescriptor(n))] = true
		case atom.Textarea, atom.Select:
			set[ClassifyField(fieldDescriptor(n))] = true
		}
		return true
	})

	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return model.FormSummary{Action: attr(form, "action"), Fields: fields}
}

func fieldDescriptor(n *html.Node) string {
	parts := []string{attr(n, "name"), attr(n, "id"), attr(n, "placeholder"), attr(n, "aria-label"), attr(n, "autocomplete")}
	if n.DataAtom == atom.Textarea && strings.Join(parts, "") == "" {
		return "message"
	}
	return strings.Join(parts, " ")
}

// ClassifyField maps a field descriptor onto a semantic.
func ClassifyField(desc string) string {
	lower := strings.ToLower(desc)
	for _, fh := range fieldHints {
		for _, h := range fh.hints {
			if strings.Contains(lower, h) {
				return fh.semantic
			}
		}
	}
	return FieldOther
}
