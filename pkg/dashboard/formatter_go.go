package dashboard

import (
	"fmt"
	"regexp"
	"strings"
)

type gofmtFormatter struct{}

func (gofmtFormatter) Matches(command string) bool {
	tool, _ := commandTool(command)
	return tool == "gofmt" || tool == "goimports"
}

// Summarize treats every output line of `gofmt -l` as a file path.
// gofmt exits 0 even when it lists files, so listed files are a warning.
func (gofmtFormatter) Summarize(lines []string) Summary {
	var files []string
	for _, line := range lines {
		if f := strings.TrimSpace(line); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return Summary{Headline: "all files formatted"}
	}
	return Summary{
		Headline: fmt.Sprintf("%d %s not formatted", len(files), plural(len(files), "file", "files")),
		Details:  files,
		Warning:  true,
	}
}

var (
	golangciIssueRe = regexp.MustCompile(`^\S+\.go:\d+(?::\d+)?: .*\((\w[\w-]*)\)$`)
	golangciCountRe = regexp.MustCompile(`^(\d+) issues?[.:]?$`)
)

type golangciFormatter struct{}

func (golangciFormatter) Matches(command string) bool {
	tool, _ := commandTool(command)
	return tool == "golangci-lint"
}

func (golangciFormatter) Summarize(lines []string) Summary {
	var sum Summary
	linters := map[string]int{}
	issues := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := golangciIssueRe.FindStringSubmatch(line); m != nil {
			linters[m[1]]++
			issues++
			continue
		}
		if golangciCountRe.MatchString(line) {
			sum.Headline = strings.TrimRight(line, ".:")
		}
	}
	if sum.Headline == "" && issues > 0 {
		sum.Headline = fmt.Sprintf("%d %s", issues, plural(issues, "issue", "issues"))
	}
	sum.Details = countDetails(linters)
	return sum
}

var (
	goTestOkRe      = regexp.MustCompile(`^ok\s+(\S+)\s+\S+(?:\s+coverage: ([0-9.]+%) of statements)?`)
	goTestFailPkgRe = regexp.MustCompile(`^FAIL\s+(\S+)\s+`)
	goTestNoTestsRe = regexp.MustCompile(`^\?\s+(\S+)\s+\[no test files\]`)
	goTestFailRe    = regexp.MustCompile(`^--- FAIL: (\S+)`)
)

type goTestFormatter struct{}

func (goTestFormatter) Matches(command string) bool {
	tool, _ := commandTool(command)
	return tool == "go" && hasArg(command, "test")
}

func (goTestFormatter) Summarize(lines []string) Summary {
	var sum Summary
	var passed, failed, untested int
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case goTestOkRe.MatchString(line):
			passed++
		case goTestFailPkgRe.MatchString(line):
			failed++
			sum.Details = append(sum.Details, "FAIL "+goTestFailPkgRe.FindStringSubmatch(line)[1])
		case goTestNoTestsRe.MatchString(line):
			untested++
		case goTestFailRe.MatchString(line):
			sum.Details = append(sum.Details, "--- FAIL "+goTestFailRe.FindStringSubmatch(line)[1])
		}
	}
	if passed+failed+untested == 0 {
		return sum
	}
	sum.Headline = fmt.Sprintf("%d ok, %d failed, %d without tests", passed, failed, untested)
	return sum
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
