package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

var analyzeFlags struct {
	url          string
	description  string
	contentFile  string
	presenceFile string
	searchFile   string
	keywords     []string
	render       bool
	out          string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the pipeline for one business",
	Example: `  market-intel analyze --url https://acme.example
  market-intel analyze --description "family bakery in Portland, OR" --render`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in, err := buildInput(analyzeFlags.url, analyzeFlags.description, analyzeFlags.contentFile,
			analyzeFlags.presenceFile, analyzeFlags.searchFile, analyzeFlags.keywords)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		rep := env.Pipeline.Execute(ctx, in)
		if rep == nil {
			return eris.Errorf("analysis of %q produced no report", in.Target())
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", rep.RunID),
			zap.String("status", string(rep.Status)),
			zap.Float64("overall_confidence", rep.OverallConfidence),
			zap.Int64("prompt_tokens", rep.Usage.PromptTokens),
			zap.Float64("cost_usd", rep.Usage.Cost),
		)

		w := io.Writer(os.Stdout)
		if analyzeFlags.out != "" {
			f, err := os.Create(analyzeFlags.out)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return writeReport(w, rep, analyzeFlags.render)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.url, "url", "", "business website URL")
	f.StringVar(&analyzeFlags.description, "description", "", "free-text business description")
	f.StringVar(&analyzeFlags.contentFile, "content-file", "", "page HTML or text already fetched")
	f.StringVar(&analyzeFlags.presenceFile, "presence-file", "", "JSON array of prefetched presence search responses")
	f.StringVar(&analyzeFlags.searchFile, "search-file", "", "JSON array of prefetched competitor search responses")
	f.StringSliceVar(&analyzeFlags.keywords, "keyword", nil, "seed keyword for competitor search (repeatable)")
	f.BoolVar(&analyzeFlags.render, "render", false, "render the report markdown in the terminal instead of printing JSON")
	f.StringVar(&analyzeFlags.out, "out", "", "write output to file instead of stdout")
	rootCmd.AddCommand(analyzeCmd)
}

// buildInput assembles a pipeline input from flag values. Files are read
// eagerly so a bad path fails before any model call.
func buildInput(url, description, contentFile, presenceFile, searchFile string, keywords []string) (model.Input, error) {
	in := model.Input{
		URL:         strings.TrimSpace(url),
		Description: strings.TrimSpace(description),
		Keywords:    keywords,
	}

	if contentFile != "" {
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return in, eris.Wrap(err, "read content file")
		}
		if looksLikeHTML(contentFile, data) {
			in.HTML = string(data)
		} else {
			in.TextContent = string(data)
		}
	}

	if presenceFile != "" {
		resps, err := readSearchFile(presenceFile)
		if err != nil {
			return in, err
		}
		in.PresenceResults = resps
	}
	if searchFile != "" {
		resps, err := readSearchFile(searchFile)
		if err != nil {
			return in, err
		}
		in.SearchResults = resps
	}

	if !in.Usable() {
		return in, eris.New("one of --url, --description or --content-file is required")
	}
	return in, nil
}

func looksLikeHTML(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	case ".txt", ".md":
		return false
	}
	head := strings.ToLower(strings.TrimSpace(string(data[:min(len(data), 512)])))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func readSearchFile(path string) ([]model.SearchResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read search file %s", path)
	}
	var resps []model.SearchResponse
	if err := json.Unmarshal(data, &resps); err != nil {
		return nil, eris.Wrapf(err, "parse search file %s", path)
	}
	return resps, nil
}

// writeReport prints rep as indented JSON, or as terminal-rendered
// markdown when render is set.
func writeReport(w io.Writer, rep *model.Report, render bool) error {
	if !render {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return eris.Wrap(err, "init markdown renderer")
	}
	out, err := r.Render(rep.Markdown)
	if err != nil {
		return eris.Wrap(err, "render report markdown")
	}
	_, err = fmt.Fprint(w, out)
	return err
}
