// Package cli renders session results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hyperjump/wakeru/internal/entity"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/nlp"
	"github.com/hyperjump/wakeru/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable tables (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// PreviewChars is how much extracted text is shown per document.
const PreviewChars = 500

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ParseOutputFormat accepts "text" or "json" ("" means text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DocumentView is a processed document as shown to the user.
type DocumentView struct {
	Outcome  models.DocumentOutcome    `json:"outcome"`
	Preview  string                    `json:"preview,omitempty"`
	Entities []models.NormalizedEntity `json:"entities,omitempty"`
}

// NewDocumentViews pairs batch outcomes with their stored documents, in upload order.
func NewDocumentViews(res *models.BatchResult, docs []*models.DocumentRecord) []DocumentView {
	byID := make(map[string]*models.DocumentRecord, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	views := make([]DocumentView, len(res.Documents))
	for i, o := range res.Documents {
		views[i].Outcome = o
		if d, ok := byID[o.DocumentID]; ok {
			views[i].Preview = utils.Truncate(d.RawText, PreviewChars)
			views[i].Entities = d.Entities
		}
	}
	return views
}

// WriteDocuments writes each document's entities and label counts.
func WriteDocuments(w io.Writer, views []DocumentView, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, views)
	}
	for _, v := range views {
		fmt.Fprintln(w, headerStyle.Render(v.Outcome.Filename))
		if v.Outcome.Error != "" {
			fmt.Fprintln(w, errorStyle.Render("  error: "+v.Outcome.Error))
			fmt.Fprintln(w)
			continue
		}
		if v.Preview != "" {
			fmt.Fprintln(w, mutedStyle.Render(v.Preview))
		}
		if len(v.Entities) == 0 {
			fmt.Fprintln(w, mutedStyle.Render("  no entities found"))
			fmt.Fprintln(w)
			continue
		}
		t := newTable("Entity", "Label")
		for _, e := range v.Entities {
			t.Row(e.Text, e.Label)
		}
		fmt.Fprintln(w, t.String())
		fmt.Fprintln(w, labelTable(v.Outcome.LabelCounts).String())
		fmt.Fprintln(w)
	}
	return nil
}

// WriteLabelCounts writes label counts ordered by count.
func WriteLabelCounts(w io.Writer, counts models.LabelCount, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, entity.Sorted(counts))
	}
	fmt.Fprintln(w, labelTable(counts).String())
	return nil
}

func labelTable(counts models.LabelCount) *table.Table {
	t := newTable("Label", "Count")
	for _, c := range entity.Sorted(counts) {
		t.Row(c.Label, strconv.Itoa(c.Count))
	}
	return t
}

// WriteClusterReport writes cluster assignments and projection coordinates.
func WriteClusterReport(w io.Writer, report *models.ClusterReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	if !report.Available {
		fmt.Fprintln(w, errorStyle.Render("clustering unavailable: "+report.Reason))
		return nil
	}
	fmt.Fprintf(w, "%d clusters (seed %d, embedder %s)\n", report.K, report.Seed, report.EmbeddingModel)
	points := make(map[string]models.Point, len(report.Points))
	for _, p := range report.Points {
		points[p.DocumentID] = p
	}
	t := newTable("Document", "Cluster", "X", "Y")
	for _, a := range report.Assignments {
		x, y := "-", "-"
		if p, ok := points[a.DocumentID]; ok {
			x, y = strconv.FormatFloat(p.X, 'f', 4, 64), strconv.FormatFloat(p.Y, 'f', 4, 64)
		}
		t.Row(a.Filename, strconv.Itoa(a.ClusterID), x, y)
	}
	fmt.Fprintln(w, t.String())
	return nil
}

// WriteModelStatus writes which model each kind loaded, and what failed on the way.
func WriteModelStatus(w io.Writer, status []nlp.ModelStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	t := newTable("Kind", "Model", "Status")
	for _, s := range status {
		switch {
		case !s.Available:
			t.Row(string(s.Kind), "-", "unavailable")
		case s.Fallback:
			t.Row(string(s.Kind), s.ModelID, "fallback")
		default:
			t.Row(string(s.Kind), s.ModelID, "loaded")
		}
	}
	fmt.Fprintln(w, t.String())
	for _, s := range status {
		for _, a := range s.Failed {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s %s (%s) failed: %v", s.Kind, a.ModelID, a.Provider, a.Err)))
		}
	}
	return nil
}
