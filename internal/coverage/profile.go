// Package coverage reads Go cover profiles and renders statement coverage
// reports as markdown tables.
package coverage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Block is one basic block from a cover profile.
type Block struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	NumStmt   int
	Count     int
}

// Profile holds the blocks recorded for a single source file.
type Profile struct {
	FileName string
	Mode     string
	Blocks   []Block
}

// ParseError reports a profile line that could not be read.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("coverage profile line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseFile reads the cover profile at path.
func ParseFile(path string) ([]*Profile, error) {
	f, err := os.Open(path) // #nosec G304 -- path is user-supplied on purpose
	if err != nil {
		return nil, fmt.Errorf("open coverage profile: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse reads a cover profile. Blocks repeated across merged profiles are
// folded together; the result is sorted by file name and block position.
func Parse(r io.Reader) ([]*Profile, error) {
	type blockKey struct {
		file                       string
		startL, startC, endL, endC int
	}

	files := make(map[string]*Profile)
	seen := make(map[blockKey]int) // index into files[file].Blocks
	mode := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "mode:") {
			m := strings.TrimSpace(strings.TrimPrefix(line, "mode:"))
			if mode != "" && m != mode {
				return nil, &ParseError{Line: lineNo, Text: line, Err: fmt.Errorf("mode %q conflicts with %q", m, mode)}
			}
			mode = m
			continue
		}
		if mode == "" {
			return nil, &ParseError{Line: lineNo, Text: line, Err: fmt.Errorf("missing mode header")}
		}

		file, b, err := parseLine(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: line, Err: err}
		}

		p, ok := files[file]
		if !ok {
			p = &Profile{FileName: file, Mode: mode}
			files[file] = p
		}
		key := blockKey{file, b.StartLine, b.StartCol, b.EndLine, b.EndCol}
		if idx, dup := seen[key]; dup {
			existing := &p.Blocks[idx]
			if mode == "set" {
				if b.Count > existing.Count {
					existing.Count = b.Count
				}
			} else {
				existing.Count += b.Count
			}
			continue
		}
		seen[key] = len(p.Blocks)
		p.Blocks = append(p.Blocks, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read coverage profile: %w", err)
	}

	profiles := make([]*Profile, 0, len(files))
	for _, p := range files {
		sort.Slice(p.Blocks, func(i, j int) bool {
			bi, bj := p.Blocks[i], p.Blocks[j]
			if bi.StartLine != bj.StartLine {
				return bi.StartLine < bj.StartLine
			}
			return bi.StartCol < bj.StartCol
		})
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].FileName < profiles[j].FileName })
	return profiles, nil
}

// parseLine splits "name.go:line.col,line.col numStmt count".
func parseLine(line string) (string, Block, error) {
	var b Block

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", b, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	colon := strings.LastIndex(fields[0], ":")
	if colon <= 0 {
		return "", b, fmt.Errorf("missing file name")
	}
	file, span := fields[0][:colon], fields[0][colon+1:]

	start, end, ok := strings.Cut(span, ",")
	if !ok {
		return "", b, fmt.Errorf("malformed span %q", span)
	}
	var err error
	if b.StartLine, b.StartCol, err = parsePos(start); err != nil {
		return "", b, err
	}
	if b.EndLine, b.EndCol, err = parsePos(end); err != nil {
		return "", b, err
	}
	if b.NumStmt, err = strconv.Atoi(fields[1]); err != nil {
		return "", b, fmt.Errorf("statement count: %w", err)
	}
	if b.Count, err = strconv.Atoi(fields[2]); err != nil {
		return "", b, fmt.Errorf("hit count: %w", err)
	}
	if b.NumStmt < 0 || b.Count < 0 {
		return "", b, fmt.Errorf("negative counts")
	}
	return file, b, nil
}

func parsePos(s string) (int, int, error) {
	l, c, ok := strings.Cut(s, ".")
	if !ok {
		return 0, 0, fmt.Errorf("malformed position %q", s)
	}
	line, err := strconv.Atoi(l)
	if err != nil {
		return 0, 0, fmt.Errorf("position line: %w", err)
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return 0, 0, fmt.Errorf("position column: %w", err)
	}
	return line, col, nil
}
