package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// reportFormat selects how an ingestion report is printed.
type reportFormat int

const (
	reportPlain reportFormat = iota
	reportStyled
	reportJSON
)

// formatFor picks JSON when asked, styled output on terminals and plain
// text otherwise.
func formatFor(w io.Writer, asJSON bool) reportFormat {
	switch {
	case asJSON:
		return reportJSON
	case isTerminal(w):
		return reportStyled
	default:
		return reportPlain
	}
}

func writeReport(w io.Writer, r *domain.IngestionReport, format reportFormat) error {
	switch format {
	case reportJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case reportStyled:
		_, err := fmt.Fprintln(w, styledReport(NewStyles(w, nil), r))
		return err
	default:
		_, err := io.WriteString(w, plainReport(r))
		return err
	}
}

func plainReport(r *domain.IngestionReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Collection: %s (%s / %s)\n", r.Collection, r.Provider, r.Model)
	fmt.Fprintf(&b, "Processed: %d  Errored: %d  Skipped: %d\n", len(r.Processed), len(r.Errors), len(r.Skipped))
	fmt.Fprintf(&b, "Chunks: %d (written %d, skipped %d, failed %d)\n",
		r.TotalChunks, r.Write.Written, r.Write.Skipped, r.Write.Failed)
	if r.OCRPages > 0 {
		fmt.Fprintf(&b, "OCR pages: %d\n", r.OCRPages)
	}
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Sections) > 0 {
		b.WriteString("\nSections:\n")
		for _, source := range sortedKeys(r.Sections) {
			fmt.Fprintf(&b, "  %s: %s\n", source, strings.Join(r.Sections[source], ", "))
		}
	}
	if len(r.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s [%s]: %s\n", e.Source, e.Kind, e.Reason)
		}
	}
	if len(r.Skipped) > 0 {
		b.WriteString("\nSkipped:\n")
		for _, s := range r.Skipped {
			fmt.Fprintf(&b, "  %s: %s\n", s.Source, s.Reason)
		}
	}
	return b.String()
}

func styledReport(st *Styles, r *domain.IngestionReport) string {
	var lines []string

	lines = append(lines,
		st.Title.Render("Ingestion report"),
		fmt.Sprintf("%s %s %s", st.Label.Render("Collection"), r.Collection,
			st.Muted.Render("("+r.Provider+" / "+r.Model+")")),
		fmt.Sprintf("%s %s  %s  %s", st.Label.Render("Documents "),
			st.Success.Render(fmt.Sprintf("%d processed", len(r.Processed))),
			countStyle(st, len(r.Errors), st.Error).Render(fmt.Sprintf("%d errored", len(r.Errors))),
			countStyle(st, len(r.Skipped), st.Warning).Render(fmt.Sprintf("%d skipped", len(r.Skipped)))),
		fmt.Sprintf("%s %d %s", st.Label.Render("Chunks    "), r.TotalChunks,
			st.Muted.Render(fmt.Sprintf("written %d, skipped %d, failed %d", r.Write.Written, r.Write.Skipped, r.Write.Failed))),
	)
	if r.OCRPages > 0 {
		lines = append(lines, fmt.Sprintf("%s %d", st.Label.Render("OCR pages "), r.OCRPages))
	}
	lines = append(lines, st.Muted.Render("Took "+r.Duration.Round(time.Millisecond).String()))

	if len(r.Sections) > 0 {
		lines = append(lines, "", st.Title.Render("Sections"))
		for _, source := range sortedKeys(r.Sections) {
			tags := make([]string, len(r.Sections[source]))
			for i, s := range r.Sections[source] {
				tags[i] = st.Section.Render(s)
			}
			lines = append(lines, fmt.Sprintf("  %s  %s", source, strings.Join(tags, st.Muted.Render(" · "))))
		}
	}
	if len(r.Errors) > 0 {
		lines = append(lines, "", st.Error.Render("Errors"))
		for _, e := range r.Errors {
			lines = append(lines, fmt.Sprintf("  %s %s %s", e.Source, st.Muted.Render("["+string(e.Kind)+"]"), e.Reason))
		}
	}
	if len(r.Skipped) > 0 {
		lines = append(lines, "", st.Warning.Render("Skipped"))
		for _, s := range r.Skipped {
			lines = append(lines, fmt.Sprintf("  %s %s", s.Source, st.Muted.Render(s.Reason)))
		}
	}

	return st.Box.Render(strings.Join(lines, "\n"))
}

// countStyle highlights non-zero counts.
func countStyle(st *Styles, n int, highlight lipgloss.Style) lipgloss.Style {
	if n == 0 {
		return st.Muted
	}
	return highlight
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
