// Package cli renders query answers, volume scores and build reports for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/service"
	"github.com/hyperjump/rulebook/internal/volume"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	answerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteQueryResponse writes an answer with its selected volumes and sources.
func WriteQueryResponse(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s %s  %s %dms\n", dimStyle.Render("Index:"), titleStyle.Render(string(resp.Kind)),
		dimStyle.Render("Time:"), resp.QueryTime)
	if len(resp.Volumes) > 0 {
		fmt.Fprintln(w, dimStyle.Render("Volumes:"))
		for _, v := range resp.Volumes {
			fmt.Fprintf(w, "  %.2f  %s\n", v.Score, v.Name)
		}
	}
	fmt.Fprintln(w, answerBoxStyle.Render(resp.Answer))
	if len(resp.Sources) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sources."))
		return nil
	}
	fmt.Fprintf(w, "%s\n", titleStyle.Render(fmt.Sprintf("Sources (%d)", len(resp.Sources))))
	for i, s := range resp.Sources {
		writeSource(w, i+1, s)
	}
	return nil
}

func writeSource(w io.Writer, rank int, s *models.ScoredNode) {
	m := s.Node.Metadata
	ref := m.SectionReference
	if ref == "" {
		ref = m.ModuleCode
	}
	fmt.Fprintf(w, "[%d] %s %s", rank, m.Filename, dimStyle.Render(fmt.Sprintf("score %.4f", s.Score)))
	if ref != "" {
		fmt.Fprintf(w, " %s", ref)
	}
	fmt.Fprintf(w, "\n    %s\n", TruncateWords(s.Node.Text, 40))
}

// WriteVolumes writes the volume registry.
func WriteVolumes(w io.Writer, vols []volume.Descriptor, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, vols)
	}
	for _, v := range vols {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(v.Name), dimStyle.Render(strings.Join(v.Files, ", ")))
		fmt.Fprintf(w, "    %s\n", Truncate(v.Description, 160))
	}
	return nil
}

// WriteScoredVolumes writes a volume selection result.
func WriteScoredVolumes(w io.Writer, scored []volume.Scored, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, scored)
	}
	if len(scored) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No volumes selected."))
		return nil
	}
	for _, s := range scored {
		fmt.Fprintf(w, "%.2f  %s\n", s.Score, s.Descriptor.Name)
	}
	return nil
}

// WriteBuildReport writes a build summary followed by any file that was not loaded.
func WriteBuildReport(w io.Writer, report *indexer.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	status := successStyle.Render(report.Status)
	if report.Status != indexer.StatusBuilt {
		status = errorStyle.Render(report.Status)
	}
	fmt.Fprintf(w, "%s %s  %s %s\n", dimStyle.Render("Index:"), titleStyle.Render(string(report.Kind)),
		dimStyle.Render("Status:"), status)
	fmt.Fprintf(w, "%s %d loaded, %d skipped, %d failed  %s %d  %s %s\n",
		dimStyle.Render("Files:"), report.Loaded, report.Skipped, report.Failed,
		dimStyle.Render("Nodes:"), report.Nodes,
		dimStyle.Render("Took:"), report.Duration.Round(1e6))
	for _, f := range report.Files {
		if f.Status == indexer.FileLoaded {
			continue
		}
		line := fmt.Sprintf("  %s %s", f.Status, f.Filename)
		if f.Error != "" {
			line += ": " + f.Error
		}
		fmt.Fprintln(w, errorStyle.Render(line))
	}
	return nil
}

// WriteStatus writes the service status.
func WriteStatus(w io.Writer, st *service.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "%s %s (%d documents, %s)\n", dimStyle.Render("Data:"), st.DataDir, st.Documents, FormatBytes(st.DiskUsageBytes))
	for _, ix := range st.Indexes {
		state := errorStyle.Render("missing")
		switch {
		case ix.Loaded:
			state = successStyle.Render("loaded")
		case ix.Exists:
			state = dimStyle.Render("on disk")
		}
		fmt.Fprintf(w, "%s %s %s", titleStyle.Render(string(ix.Kind)), state, dimStyle.Render(ix.Path))
		if ix.Manifest != nil {
			fmt.Fprintf(w, " %d nodes, built %s", ix.Manifest.Nodes, ix.Manifest.BuiltAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// PrintQueryResponse prints resp to stdout as text.
func PrintQueryResponse(resp *models.QueryResponse) {
	_ = WriteQueryResponse(os.Stdout, resp, OutputText)
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
