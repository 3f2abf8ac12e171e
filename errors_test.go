package pagepatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadErrorFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.md")
	content := "---\ntitle: \"Broken\"\n\n# Heading\n\nbody\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := ParseFile(path, "broken")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	errMsg := err.Error()
	t.Logf("Error message:\n%s", errMsg)

	if !strings.Contains(errMsg, "Error in "+path) {
		t.Errorf("Error should mention the file path")
	}
	if !strings.Contains(errMsg, "Line 1: unclosed frontmatter") {
		t.Errorf("Error should mention line and message")
	}
	if !strings.Contains(errMsg, ">   1 | ---") {
		t.Errorf("Error should point at the offending line")
	}
	if !strings.Contains(errMsg, "Tip: close the YAML block") {
		t.Errorf("Error should include helpful tip")
	}
}

func TestLoadErrorWithoutSource(t *testing.T) {
	err := NewLoadError("/path/to/missing.html", 42, "Something went wrong").
		WithHint("Try doing X instead")

	errMsg := err.Error()

	if !strings.Contains(errMsg, "Error in /path/to/missing.html") {
		t.Errorf("Error should mention file path")
	}
	if !strings.Contains(errMsg, "Line 42: Something went wrong") {
		t.Errorf("Error should mention line 42")
	}
	if strings.Contains(errMsg, " | ") {
		t.Errorf("Error should not include source context for an unreadable file")
	}
	if !strings.Contains(errMsg, "Tip: Try doing X instead") {
		t.Errorf("Error should include hint")
	}
}
