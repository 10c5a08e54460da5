// Package report renders matrix results for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

var (
	colorPassed  = lipgloss.Color("#5FD75F")
	colorFailed  = lipgloss.Color("#FF6B6B")
	colorSkipped = lipgloss.Color("#AAAAAA")
	colorHeader  = lipgloss.Color("#5B8DEF")
)

// Summary writes the end-of-run summary, one line per environment:
//
//	pytest   OK       (12.3s)
//	flake8   FAIL     (2.1s)  "flake8 gcsa" exited with code 1
//	mypy     SKIPPED
//	1 passed, 1 failed, 1 skipped in 14.4s
//
// Colors are only emitted when w is a terminal that supports them.
func Summary(w io.Writer, result *model.MatrixResult) error {
	r := lipgloss.NewRenderer(w)

	width := 0
	for _, res := range result.Results {
		width = max(width, len(res.Name))
	}
	nameStyle := r.NewStyle().Width(width + 4).PaddingLeft(2)
	statusStyle := r.NewStyle().Width(8).Bold(true)
	dimStyle := r.NewStyle().Foreground(colorSkipped)

	var b strings.Builder
	b.WriteString(r.NewStyle().Bold(true).Foreground(colorHeader).Render("summary"))
	b.WriteString("\n")

	for _, res := range result.Results {
		var status string
		switch res.Status {
		case model.StatusPassed:
			status = statusStyle.Foreground(colorPassed).Render("OK")
		case model.StatusFailed:
			status = statusStyle.Foreground(colorFailed).Render("FAIL")
		default:
			status = statusStyle.Foreground(colorSkipped).Render("SKIPPED")
		}

		line := nameStyle.Render(res.Name) + status
		if res.Status != model.StatusSkipped {
			line += " " + dimStyle.Render("("+formatDuration(res.Duration)+")")
		}
		if res.Error != "" {
			line += "  " + res.Error
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteString("\n")
	}

	totals := fmt.Sprintf("  %d passed, %d failed, %d skipped in %s",
		result.Count(model.StatusPassed),
		result.Count(model.StatusFailed),
		result.Count(model.StatusSkipped),
		formatDuration(result.Duration),
	)
	if result.Interrupted {
		totals += " (interrupted)"
	}
	if result.Failed() {
		totals = r.NewStyle().Foreground(colorFailed).Render(totals)
	} else {
		totals = r.NewStyle().Foreground(colorPassed).Render(totals)
	}
	b.WriteString(totals)
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// formatDuration renders durations the way test runners usually do:
// "850ms", "12.3s", "2m5s".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// resultJSON is the on-disk shape of a run, with durations in seconds.
type resultJSON struct {
	Started      time.Time `json:"started"`
	DurationSecs float64   `json:"durationSeconds"`
	Failed       bool      `json:"failed"`
	Interrupted  bool      `json:"interrupted"`
	ExitCode     int       `json:"exitCode"`
	Environments []envJSON `json:"environments"`
}

type envJSON struct {
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	Phase        string        `json:"phase,omitempty"`
	DurationSecs float64       `json:"durationSeconds"`
	Error        string        `json:"error,omitempty"`
	Commands     []commandJSON `json:"commands"`
}

type commandJSON struct {
	Command      string  `json:"command"`
	ExitCode     int     `json:"exitCode"`
	Ignored      bool    `json:"ignored,omitempty"`
	DurationSecs float64 `json:"durationSeconds"`
}

func toJSON(result *model.MatrixResult) resultJSON {
	out := resultJSON{
		Started:      result.Started,
		DurationSecs: result.Duration.Seconds(),
		Failed:       result.Failed(),
		Interrupted:  result.Interrupted,
		ExitCode:     int(result.ExitCode()),
		Environments: make([]envJSON, 0, len(result.Results)),
	}
	for _, res := range result.Results {
		e := envJSON{
			Name:         res.Name,
			Status:       res.Status.String(),
			Phase:        string(res.Phase),
			DurationSecs: res.Duration.Seconds(),
			Error:        res.Error,
			Commands:     make([]commandJSON, 0, len(res.Commands)),
		}
		for _, c := range res.Commands {
			e.Commands = append(e.Commands, commandJSON{
				Command:      c.Command,
				ExitCode:     c.ExitCode,
				Ignored:      c.Ignored,
				DurationSecs: c.Duration.Seconds(),
			})
		}
		out.Environments = append(out.Environments, e)
	}
	return out
}

// EncodeJSON writes result as indented JSON.
func EncodeJSON(w io.Writer, result *model.MatrixResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toJSON(result))
}

// WriteJSONFile writes result to path (the --result-json flag).
func WriteJSONFile(path string, result *model.MatrixResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	if err := EncodeJSON(f, result); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write result file: %w", err)
	}
	return f.Close()
}
