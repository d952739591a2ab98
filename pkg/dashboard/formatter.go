package dashboard

import (
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// Summary is what a formatter extracts from a step's output. It never
// decides pass or fail; the exit code does that.
type Summary struct {
	// Headline is a one-line result, e.g. "3 files would be reformatted".
	Headline string
	// Details are the lines worth showing, most important first.
	Details []string
	// Warning marks a passing step whose output still needs attention.
	Warning bool
}

// OutputFormatter turns a tool's raw output into a Summary.
type OutputFormatter interface {
	// Matches reports whether this formatter handles the command line.
	Matches(command string) bool
	// Summarize reads the captured output lines.
	Summarize(lines []string) Summary
}

// BatchFormatter is implemented by formatters whose raw output is noise
// when streamed, so non-TTY mode prints only the summary.
type BatchFormatter interface {
	PrefersBatch() bool
}

// RawFormatter is implemented by formatters whose output is itself the
// report, so it is written verbatim instead of prefixed or boxed.
type RawFormatter interface {
	PrefersRaw() bool
}

var (
	formattersMu sync.RWMutex
	formatters   []OutputFormatter
)

// RegisterFormatter adds f ahead of the built-in formatters.
func RegisterFormatter(f OutputFormatter) {
	formattersMu.Lock()
	defer formattersMu.Unlock()
	formatters = append([]OutputFormatter{f}, formatters...)
}

func init() {
	formatters = []OutputFormatter{
		&djlintFormatter{},
		&ruffFormatter{},
		&unittestFormatter{},
		&coverageReportFormatter{},
		&gofmtFormatter{},
		&golangciFormatter{},
		&goTestFormatter{},
	}
}

// FormatterFor returns the formatter matching command, or the plain one.
func FormatterFor(command string) OutputFormatter {
	formattersMu.RLock()
	defer formattersMu.RUnlock()
	for _, f := range formatters {
		if f.Matches(command) {
			return f
		}
	}
	return plainFormatter{}
}

// FormatterPrefersBatch reports whether streaming should be suppressed.
func FormatterPrefersBatch(command string) bool {
	if b, ok := FormatterFor(command).(BatchFormatter); ok {
		return b.PrefersBatch()
	}
	return false
}

// FormatterPrefersRaw reports whether output should pass through unprefixed.
func FormatterPrefersRaw(command string) bool {
	if r, ok := FormatterFor(command).(RawFormatter); ok {
		return r.PrefersRaw()
	}
	return false
}

// Summarize runs the matching formatter over lines.
func Summarize(command string, lines []string) Summary {
	return FormatterFor(command).Summarize(lines)
}

// FormatOutput renders the summary followed by the raw output, each line
// clipped to width display cells. A width <= 0 disables clipping.
func FormatOutput(command string, lines []string, width int) string {
	sum := Summarize(command, lines)
	var b strings.Builder
	if sum.Headline != "" {
		b.WriteString(clip(sum.Headline, width))
		b.WriteString("\n")
	}
	for _, d := range sum.Details {
		b.WriteString(clip("  "+d, width))
		b.WriteString("\n")
	}
	if b.Len() > 0 && len(lines) > 0 {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(clip(line, width))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// commandTool returns the base name of the executable and, for
// "python -m X" style invocations, the module name.
func commandTool(command string) (tool, module string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", ""
	}
	tool = fields[0]
	if i := strings.LastIndexAny(tool, `/\`); i >= 0 {
		tool = tool[i+1:]
	}
	for i := 1; i < len(fields)-1; i++ {
		if fields[i] == "-m" {
			module = fields[i+1]
			break
		}
	}
	return tool, module
}

// hasArg reports whether any argument after the executable equals arg.
func hasArg(command, arg string) bool {
	fields := strings.Fields(command)
	for _, f := range fields[min(1, len(fields)):] {
		if f == arg {
			return true
		}
	}
	return false
}

type plainFormatter struct{}

func (plainFormatter) Matches(string) bool { return true }

func (plainFormatter) Summarize(lines []string) Summary {
	return Summary{}
}
