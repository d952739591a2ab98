package dashboard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// djlint prints a diff per file in check mode and a count line at the end.
var (
	djlintCountRe = regexp.MustCompile(`^(\d+) files? (would be updated|was updated|were updated)\.?$`)
	djlintLintRe  = regexp.MustCompile(`^Linted (\d+) files?, found (\d+) errors?\.?$`)
)

var templateExts = map[string]bool{
	".html":   true,
	".htm":    true,
	".jinja":  true,
	".jinja2": true,
	".j2":     true,
	".djhtml": true,
}

type djlintFormatter struct{}

func (djlintFormatter) Matches(command string) bool {
	tool, module := commandTool(command)
	return tool == "djlint" || module == "djlint"
}

func (djlintFormatter) Summarize(lines []string) Summary {
	var sum Summary
	seen := map[string]bool{}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := djlintCountRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			sum.Headline = line
			// --reformat rewrote templates on disk.
			sum.Warning = n > 0 && m[2] != "would be updated"
			continue
		}
		if m := djlintLintRe.FindStringSubmatch(line); m != nil {
			sum.Headline = line
			continue
		}
		if !strings.ContainsAny(line, " \t") && templateExts[strings.ToLower(filepath.Ext(line))] && !seen[line] {
			seen[line] = true
			sum.Details = append(sum.Details, line)
		}
	}
	return sum
}

var (
	ruffFoundRe  = regexp.MustCompile(`^Found (\d+) errors?`)
	ruffFormatRe = regexp.MustCompile(`^(\d+) files? reformatted`)
	ruffWouldRe  = regexp.MustCompile(`^Would reformat: (.+)$`)
	// concise: "app/x.py:1:8: F401 [*] `os` imported but unused"
	ruffConciseRe = regexp.MustCompile(`^\S+:\d+:\d+: ([A-Z]+[0-9]+) `)
	// full: "F401 [*] `os` imported but unused" followed by " --> app/x.py:1:8"
	ruffFullRe = regexp.MustCompile(`^([A-Z]+[0-9]+) (\[\*\] )?\S`)
)

type ruffFormatter struct{}

func (ruffFormatter) Matches(command string) bool {
	tool, module := commandTool(command)
	return tool == "ruff" || module == "ruff"
}

func (ruffFormatter) Summarize(lines []string) Summary {
	var sum Summary
	rules := map[string]int{}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "All checks passed!":
			sum.Headline = line
		case ruffFoundRe.MatchString(line):
			sum.Headline = line
		case ruffFormatRe.MatchString(line):
			sum.Headline = line
			n, _ := strconv.Atoi(ruffFormatRe.FindStringSubmatch(line)[1])
			sum.Warning = n > 0
		case strings.HasSuffix(line, "left unchanged") && sum.Headline == "":
			sum.Headline = line
		case ruffWouldRe.MatchString(line):
			sum.Details = append(sum.Details, "would reformat "+ruffWouldRe.FindStringSubmatch(line)[1])
		default:
			if m := ruffConciseRe.FindStringSubmatch(line); m != nil {
				rules[m[1]]++
			} else if m := ruffFullRe.FindStringSubmatch(raw); m != nil {
				rules[m[1]]++
			}
		}
	}
	sum.Details = append(sum.Details, countDetails(rules)...)
	return sum
}

var (
	unittestRanRe    = regexp.MustCompile(`^Ran (\d+) tests? in ([0-9.]+s)$`)
	unittestResultRe = regexp.MustCompile(`^(OK|FAILED)(?: \((.*)\))?$`)
	unittestCaseRe   = regexp.MustCompile(`^(FAIL|ERROR): (.+)$`)
)

type unittestFormatter struct{}

func (unittestFormatter) Matches(command string) bool {
	_, module := commandTool(command)
	return module == "unittest"
}

func (unittestFormatter) Summarize(lines []string) Summary {
	var sum Summary
	var ran, took, result, detail string
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := unittestRanRe.FindStringSubmatch(line); m != nil {
			ran, took = m[1], m[2]
			continue
		}
		if m := unittestResultRe.FindStringSubmatch(line); m != nil {
			result, detail = m[1], m[2]
			continue
		}
		if m := unittestCaseRe.FindStringSubmatch(line); m != nil {
			sum.Details = append(sum.Details, m[1]+" "+m[2])
		}
	}
	if ran == "" && result == "" {
		return sum
	}
	headline := fmt.Sprintf("%s tests in %s", ran, took)
	if ran == "" {
		headline = "tests"
	}
	headline += ": " + result
	if detail != "" {
		headline += " (" + detail + ")"
	}
	sum.Headline = headline
	sum.Warning = result == "OK" && (strings.Contains(detail, "skipped=") || strings.Contains(detail, "expected failures="))
	return sum
}

// coverage.py markdown total row: "| **TOTAL** | **120** | **30** | **75%** |"
var coverageTotalRe = regexp.MustCompile(`^\|\s*\*\*TOTAL\*\*\s*\|.*\|\s*\*\*([0-9.]+%)\*\*\s*\|$`)

type coverageReportFormatter struct{}

func (coverageReportFormatter) Matches(command string) bool {
	tool, module := commandTool(command)
	isCoverage := tool == "coverage" || module == "coverage" || (tool == "builtin" && hasArg(command, "coverage"))
	return isCoverage && hasArg(command, "report")
}

func (coverageReportFormatter) PrefersRaw() bool { return true }

func (coverageReportFormatter) Summarize(lines []string) Summary {
	var sum Summary
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := coverageTotalRe.FindStringSubmatch(line); m != nil {
			sum.Headline = "total coverage " + m[1]
		}
		if strings.HasPrefix(line, "No data to report") {
			sum.Headline = line
			sum.Warning = true
		}
	}
	return sum
}

// countDetails renders "CODE: n" lines, most frequent first.
func countDetails(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return out
}
