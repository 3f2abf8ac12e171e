package pagepatch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadError describes a page file that could not be loaded, with enough
// context to point at the offending line.
type LoadError struct {
	File    string // Source file path
	Line    int    // Line number (1-indexed)
	Message string
	Hint    string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return e.Format()
}

// Format returns the error with a few lines of surrounding source.
func (e *LoadError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Error in %s\n\n", e.File)
	fmt.Fprintf(&b, "Line %d: %s\n", e.Line, e.Message)
	b.WriteString(e.sourceContext())

	if e.Hint != "" {
		fmt.Fprintf(&b, "\nTip: %s\n", e.Hint)
	}
	return b.String()
}

func (e *LoadError) sourceContext() string {
	if e.File == "" {
		return ""
	}
	f, err := os.Open(e.File)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if e.Line < 1 || e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	start := max(1, e.Line-2)
	end := min(len(lines), e.Line+2)
	for i := start; i <= end; i++ {
		marker := "  "
		if i == e.Line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%3d | %s\n", marker, i, lines[i-1])
	}
	return b.String()
}

// NewLoadError creates a LoadError.
func NewLoadError(file string, line int, message string) *LoadError {
	return &LoadError{File: file, Line: line, Message: message}
}

// WithHint adds a suggestion to the error.
func (e *LoadError) WithHint(hint string) *LoadError {
	e.Hint = hint
	return e
}
