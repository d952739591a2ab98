package coverage

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `mode: set
example.com/m/a.go:3.10,5.2 2 1
example.com/m/a.go:7.10,9.2 3 0
example.com/m/b.go:1.1,2.2 5 1
example.com/m/a.go:3.10,5.2 2 0
example.com/m/empty.go:1.1,1.2 0 0
`

// cells splits markdown table lines into trimmed cell values.
func cells(t *testing.T, out string) [][]string {
	t.Helper()
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		require.True(t, strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|"), "not a table row: %q", line)
		parts := strings.Split(strings.Trim(line, "|"), "|")
		row := make([]string, len(parts))
		for i, p := range parts {
			row[i] = strings.TrimSpace(p)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestParse_FoldsDuplicateBlocks_When_ProfilesAreMerged(t *testing.T) {
	t.Parallel()

	profiles, err := Parse(strings.NewReader(sampleProfile))
	require.NoError(t, err)
	require.Len(t, profiles, 3)

	a := profiles[0]
	assert.Equal(t, "example.com/m/a.go", a.FileName)
	assert.Equal(t, "set", a.Mode)
	require.Len(t, a.Blocks, 2)
	assert.Equal(t, Block{StartLine: 3, StartCol: 10, EndLine: 5, EndCol: 2, NumStmt: 2, Count: 1}, a.Blocks[0])
}

func TestParse_SumsCounts_When_ModeIsCount(t *testing.T) {
	t.Parallel()

	in := "mode: count\nm/a.go:1.1,2.2 1 2\nm/a.go:1.1,2.2 1 3\n"
	profiles, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, 5, profiles[0].Blocks[0].Count)
}

func TestParse_ReturnsParseError_When_InputMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{name: "missing mode header", input: "m/a.go:1.1,2.2 1 1\n", wantLine: 1},
		{name: "too few fields", input: "mode: set\nm/a.go:1.1,2.2 1\n", wantLine: 2},
		{name: "bad span", input: "mode: set\nm/a.go:1.1-2.2 1 1\n", wantLine: 2},
		{name: "bad count", input: "mode: set\n\nm/a.go:1.1,2.2 1 x\n", wantLine: 3},
		{name: "conflicting modes", input: "mode: set\nmode: atomic\n", wantLine: 2},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tc.input))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.wantLine, perr.Line)
		})
	}
}

func TestNewReport_TalliesStatements_When_BlocksMissed(t *testing.T) {
	t.Parallel()

	profiles, err := Parse(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	r := NewReport(profiles)
	require.Len(t, r.Files, 3)
	assert.Equal(t, FileStats{Name: "example.com/m/a.go", Statements: 5, Missed: 3}, r.Files[0])
	assert.Equal(t, FileStats{Name: "example.com/m/b.go", Statements: 5, Missed: 0}, r.Files[1])
	assert.Equal(t, 10, r.Total.Statements)
	assert.Equal(t, 3, r.Total.Missed)
	assert.InDelta(t, 70.0, r.Total.Percent(), 0.001)
	assert.InDelta(t, 100.0, r.Files[2].Percent(), 0.001, "files without statements are fully covered")
}

func TestMarkdown_RendersTableWithTotal_When_DefaultOptions(t *testing.T) {
	t.Parallel()

	profiles, err := Parse(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewReport(profiles).Markdown(&buf, Options{StripPrefix: "example.com/m/"}))

	rows := cells(t, buf.String())
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"Name", "Stmts", "Miss", "Cover"}, rows[0])
	assert.True(t, strings.HasSuffix(rows[1][1], ":"), "numeric columns are right-aligned")
	assert.Equal(t, []string{"a.go", "5", "3", "40%"}, rows[2])
	assert.Equal(t, []string{"b.go", "5", "0", "100%"}, rows[3])
	assert.Equal(t, []string{"empty.go", "0", "0", "100%"}, rows[4])
	assert.Equal(t, []string{"**TOTAL**", "**10**", "**3**", "**70%**"}, rows[5])

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, line := range lines[1:] {
		assert.Equal(t, len(lines[0]), len(line), "columns are padded to equal width")
	}
}

func TestMarkdown_FiltersAndSorts_When_OptionsSet(t *testing.T) {
	t.Parallel()

	profiles, err := Parse(strings.NewReader(sampleProfile))
	require.NoError(t, err)
	r := NewReport(profiles)

	var buf bytes.Buffer
	require.NoError(t, r.Markdown(&buf, Options{SkipEmpty: true, SortBy: SortCover, StripPrefix: "example.com/m/"}))
	rows := cells(t, buf.String())
	require.Len(t, rows, 5)
	assert.Equal(t, "a.go", rows[2][0])
	assert.Equal(t, "b.go", rows[3][0])

	buf.Reset()
	require.NoError(t, r.Markdown(&buf, Options{SkipCovered: true, StripPrefix: "example.com/m/"}))
	rows = cells(t, buf.String())
	require.Len(t, rows, 4)
	assert.Equal(t, "a.go", rows[2][0])
	assert.Equal(t, "**10**", rows[3][1], "TOTAL still counts skipped files")
}

func TestMarkdown_ReturnsError_When_SortKeyUnknown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := (&Report{}).Markdown(&buf, Options{SortBy: "size"})
	require.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestMarkdown_ReturnsErrBelowThreshold_When_TotalUnderFailUnder(t *testing.T) {
	t.Parallel()

	profiles, err := Parse(strings.NewReader(sampleProfile))
	require.NoError(t, err)
	r := NewReport(profiles)

	var buf bytes.Buffer
	err = r.Markdown(&buf, Options{FailUnder: 75})
	require.True(t, errors.Is(err, ErrBelowThreshold))
	assert.Contains(t, buf.String(), "**TOTAL**", "table is written before the threshold check")

	buf.Reset()
	assert.NoError(t, r.Markdown(&buf, Options{FailUnder: 70}))
}

func TestMarkdown_ComparesRoundedTotal_When_FailUnderSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		covered   int
		failUnder float64
		precision int
		wantBelow bool
	}{
		{"rounds up to threshold at precision 0", 7999, 80, 0, false},
		{"stays below at precision 2", 7999, 80, 2, true},
		{"exact threshold passes", 8000, 80, 0, false},
		{"rounds down below threshold", 7940, 80, 0, true},
		{"full coverage required for 100", 9999, 100, 0, true},
		{"full coverage passes 100", 10000, 100, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := &Report{
				Files: []FileStats{{Name: "a.go", Statements: 10000, Missed: 10000 - tc.covered}},
				Total: FileStats{Name: "TOTAL", Statements: 10000, Missed: 10000 - tc.covered},
			}
			var buf bytes.Buffer
			err := r.Markdown(&buf, Options{FailUnder: tc.failUnder, Precision: tc.precision})
			assert.Equal(t, tc.wantBelow, errors.Is(err, ErrBelowThreshold), "err = %v", err)
		})
	}
}

func TestFormatPercent_NeverRoundsToBounds_When_PartiallyCovered(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pct       float64
		precision int
		want      string
	}{
		{100, 0, "100%"},
		{0, 0, "0%"},
		{99.99, 0, "99%"},
		{0.2, 0, "1%"},
		{66.666, 1, "66.7%"},
		{99.96, 1, "99.9%"},
		{50, 2, "50.00%"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatPercent(tc.pct, tc.precision), "FormatPercent(%v, %d)", tc.pct, tc.precision)
	}
}
