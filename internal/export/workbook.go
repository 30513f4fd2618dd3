// Package export writes batch summaries and publishes reports outside the
// store.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/market-intel/internal/model"
)

// Row is one batch entry: the input, its report, and the error when the
// run produced none.
type Row struct {
	Input  model.Input
	Report *model.Report
	Err    string
}

// SummaryHeader is the header row of the summary sheet.
var SummaryHeader = []string{
	"Target", "Status", "Business", "Location", "Category", "Overall Confidence",
	"Identity", "External Presence", "Marketing", "Competitors",
	"Phases Missing", "Low Confidence Areas", "Prompt Tokens", "Completion Tokens", "Cost USD", "Error",
}

// BuildWorkbook lays rows out on a "Summary" sheet, one line per input.
func BuildWorkbook(rows []Row) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range SummaryHeader {
		header.AddCell().SetString(h)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Input.Target())

		rep := r.Report
		if rep == nil {
			row.AddCell().SetString("aborted")
			for range len(SummaryHeader) - 3 {
				row.AddCell().SetString("")
			}
			row.AddCell().SetString(r.Err)
			continue
		}

		row.AddCell().SetString(string(rep.Status))
		row.AddCell().SetString(rep.Summary.BusinessName)
		row.AddCell().SetString(rep.Summary.Location)
		row.AddCell().SetString(rep.Summary.Category)
		row.AddCell().SetFloat(rep.OverallConfidence)
		for _, p := range model.Phases {
			if c, ok := rep.PhaseConfidences[p]; ok {
				row.AddCell().SetFloat(c)
			} else {
				row.AddCell().SetString("")
			}
		}
		row.AddCell().SetString(joinPhases(rep.DataQuality.PhasesMissing))
		row.AddCell().SetString(strings.Join(rep.DataQuality.LowConfidenceAreas, ", "))
		row.AddCell().SetInt64(rep.Usage.PromptTokens)
		row.AddCell().SetInt64(rep.Usage.CompletionTokens)
		row.AddCell().SetFloat(rep.Usage.Cost)
		row.AddCell().SetString(r.Err)
	}
	return f, nil
}

// WriteWorkbook saves the summary workbook to path.
func WriteWorkbook(path string, rows []Row) error {
	f, err := BuildWorkbook(rows)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}

// EncodeWorkbook streams the summary workbook to w.
func EncodeWorkbook(w io.Writer, rows []Row) error {
	f, err := BuildWorkbook(rows)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

func joinPhases(phases []model.PhaseName) string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
