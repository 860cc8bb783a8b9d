package invariant

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
)

// forbiddenPatterns are directives that would switch off human oversight.
// No configuration or scenario file may carry them, whatever their value.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bauto[_-]?approve\b`),
	regexp.MustCompile(`(?i)\bbypass[_-]?human\b`),
	regexp.MustCompile(`(?i)\bskip[_-]?validation\b`),
	regexp.MustCompile(`(?i)\bdisable[_-]?escalation\b`),
	regexp.MustCompile(`(?i)\bforce[_-]?allow\b`),
}

// ForbiddenPatternError reports an override directive found in an input file.
type ForbiddenPatternError struct {
	Source  string
	Line    int
	Pattern string
}

func (e *ForbiddenPatternError) Error() string {
	return fmt.Sprintf("%s:%d: forbidden directive %q", e.Source, e.Line, e.Pattern)
}

func (e *ForbiddenPatternError) Is(target error) bool { return target == ErrInvariant }

// ScanForbidden rejects data containing any forbidden directive.
// Comment lines (leading '#') are skipped.
func ScanForbidden(source string, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		for _, p := range forbiddenPatterns {
			if m := p.Find(text); m != nil {
				return &ForbiddenPatternError{Source: source, Line: line, Pattern: string(m)}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", source, err)
	}
	return nil
}
