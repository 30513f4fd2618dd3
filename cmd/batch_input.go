package main

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/market-intel/internal/model"
)

// loadInputs reads batch inputs from a .json, .csv or .xlsx file. CSV and
// XLSX files need a header row naming at least one of url, description;
// an optional keywords column holds ";"-separated keywords. Rows that name
// no target are skipped.
func loadInputs(path string) ([]model.Input, error) {
	var (
		inputs []model.Input
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		inputs, err = loadJSONInputs(path)
	case ".csv":
		inputs, err = loadCSVInputs(path)
	case ".xlsx":
		inputs, err = loadXLSXInputs(path)
	default:
		return nil, eris.Errorf("batch: unsupported input format %q (want .json, .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	usable := inputs[:0]
	for _, in := range inputs {
		if in.Usable() {
			usable = append(usable, in)
		}
	}
	return usable, nil
}

func loadJSONInputs(path string) ([]model.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: read json")
	}
	var inputs []model.Input
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, eris.Wrap(err, "batch: parse json")
	}
	return inputs, nil
}

func loadCSVInputs(path string) ([]model.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv")
		}
		rows = append(rows, rec)
	}
	return rowsToInputs(rows)
}

func loadXLSXInputs(path string) ([]model.Input, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("batch: xlsx has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rowsToInputs(rows)
}

// rowsToInputs maps tabular rows to inputs by header name.
func rowsToInputs(rows [][]string) ([]model.Input, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	_, hasURL := col["url"]
	_, hasDesc := col["description"]
	if !hasURL && !hasDesc {
		return nil, eris.New("batch: header must contain url or description")
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	inputs := make([]model.Input, 0, len(rows)-1)
	for _, row := range rows[1:] {
		in := model.Input{
			URL:         get(row, "url"),
			Description: get(row, "description"),
		}
		for _, kw := range strings.Split(get(row, "keywords"), ";") {
			if kw = strings.TrimSpace(kw); kw != "" {
				in.Keywords = append(in.Keywords, kw)
			}
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
