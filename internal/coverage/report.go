package coverage

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// ErrBelowThreshold is returned by Markdown when total coverage is under
// Options.FailUnder. The table is still written.
var ErrBelowThreshold = errors.New("total coverage below threshold")

// Sort keys accepted by Options.SortBy.
const (
	SortName  = "name"
	SortStmts = "stmts"
	SortMiss  = "miss"
	SortCover = "cover"
)

// FileStats is the statement tally for one file (or the total).
type FileStats struct {
	Name       string
	Statements int
	Missed     int
}

// Percent returns the covered share of statements. Files without
// statements count as fully covered.
func (f FileStats) Percent() float64 {
	if f.Statements == 0 {
		return 100
	}
	return 100 * float64(f.Statements-f.Missed) / float64(f.Statements)
}

// Report aggregates profiles per file.
type Report struct {
	Files []FileStats
	Total FileStats
}

// NewReport tallies covered and missed statements for every profile.
func NewReport(profiles []*Profile) *Report {
	r := &Report{Total: FileStats{Name: "TOTAL"}}
	for _, p := range profiles {
		fs := FileStats{Name: p.FileName}
		for _, b := range p.Blocks {
			fs.Statements += b.NumStmt
			if b.Count == 0 {
				fs.Missed += b.NumStmt
			}
		}
		r.Files = append(r.Files, fs)
		r.Total.Statements += fs.Statements
		r.Total.Missed += fs.Missed
	}
	return r
}

// Options controls Markdown output.
type Options struct {
	SkipCovered bool
	SkipEmpty   bool
	SortBy      string
	Precision   int
	FailUnder   float64
	StripPrefix string
}

// Markdown writes the report as a pipe table with a bold TOTAL row.
func (r *Report) Markdown(w io.Writer, opts Options) error {
	if opts.Precision < 0 {
		opts.Precision = 0
	}

	rows, err := r.rows(opts)
	if err != nil {
		return err
	}

	header := []string{"Name", "Stmts", "Miss", "Cover"}
	table := make([][]string, 0, len(rows)+1)
	for _, f := range rows {
		table = append(table, []string{
			strings.TrimPrefix(f.Name, opts.StripPrefix),
			fmt.Sprint(f.Statements),
			fmt.Sprint(f.Missed),
			FormatPercent(f.Percent(), opts.Precision),
		})
	}
	table = append(table, []string{
		"**TOTAL**",
		"**" + fmt.Sprint(r.Total.Statements) + "**",
		"**" + fmt.Sprint(r.Total.Missed) + "**",
		"**" + FormatPercent(r.Total.Percent(), opts.Precision) + "**",
	})

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range table {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow(&sb, header, widths)
	sb.WriteString("|")
	for i, width := range widths {
		if i == 0 {
			sb.WriteString(" " + strings.Repeat("-", width) + " |")
			continue
		}
		sb.WriteString(" " + strings.Repeat("-", width-1) + ": |")
	}
	sb.WriteString("\n")
	for _, row := range table {
		writeRow(&sb, row, widths)
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("write coverage report: %w", err)
	}

	if opts.FailUnder > 0 && belowThreshold(r.Total.Percent(), opts.FailUnder, opts.Precision) {
		return fmt.Errorf("%w: %s < %s", ErrBelowThreshold,
			FormatPercent(r.Total.Percent(), opts.Precision), FormatPercent(opts.FailUnder, opts.Precision))
	}
	return nil
}

// belowThreshold compares the total as displayed, so 79.99 passes
// fail-under 80 at precision 0. A threshold of 100 needs every statement.
func belowThreshold(total, failUnder float64, precision int) bool {
	if failUnder >= 100 {
		return total < 100
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(total*scale)/scale < failUnder
}

func (r *Report) rows(opts Options) ([]FileStats, error) {
	rows := make([]FileStats, 0, len(r.Files))
	for _, f := range r.Files {
		if opts.SkipEmpty && f.Statements == 0 {
			continue
		}
		if opts.SkipCovered && f.Missed == 0 {
			continue
		}
		rows = append(rows, f)
	}

	var less func(a, b FileStats) bool
	switch opts.SortBy {
	case "", SortName:
		less = func(a, b FileStats) bool { return a.Name < b.Name }
	case SortStmts:
		less = func(a, b FileStats) bool { return a.Statements < b.Statements }
	case SortMiss:
		less = func(a, b FileStats) bool { return a.Missed < b.Missed }
	case SortCover:
		less = func(a, b FileStats) bool { return a.Percent() < b.Percent() }
	default:
		return nil, fmt.Errorf("unknown sort key %q (expected name, stmts, miss, cover)", opts.SortBy)
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	return rows, nil
}

func writeRow(sb *strings.Builder, cells []string, widths []int) {
	sb.WriteString("|")
	for i, cell := range cells {
		pad := strings.Repeat(" ", widths[i]-len(cell))
		if i == 0 {
			sb.WriteString(" " + cell + pad + " |")
			continue
		}
		sb.WriteString(" " + pad + cell + " |")
	}
	sb.WriteString("\n")
}

// FormatPercent rounds pct to precision decimals. Values strictly between
// 0 and 100 never round to either bound, so 99.99% is not shown as 100%.
func FormatPercent(pct float64, precision int) string {
	scale := math.Pow(10, float64(precision))
	rounded := math.Round(pct*scale) / scale
	step := 1 / scale
	switch {
	case pct < 100 && rounded >= 100:
		rounded = 100 - step
	case pct > 0 && rounded <= 0:
		rounded = step
	}
	return fmt.Sprintf("%.*f%%", precision, rounded)
}
