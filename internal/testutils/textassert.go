package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
)

// TestingT is the part of testing.T the asserters need
type TestingT interface {
	Errorf(format string, args ...any)
}

// TextAssertOptions controls how command text output is compared
type TextAssertOptions struct {
	TrimSpace                bool
	IgnoreTrailingWhitespace bool
	IgnoreEmptyLines         bool
	EnableColors             bool
}

// TextAsserter compares multi-line command output and reports a unified diff
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

// NewTextAsserter creates an asserter; tables usually want TrimSpace and IgnoreTrailingWhitespace
func NewTextAsserter(t TestingT, opts TextAssertOptions) *TextAsserter {
	return &TextAsserter{t: t, options: opts}
}

// Assert fails the test when actual does not match expected
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if h, ok := ta.t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if diff := ta.Diff(actual, expected); diff != "" {
		ta.t.Errorf("Text assertion failed - unified diff:\n%s", diff)
		return false
	}
	return true
}

// Diff returns an empty string when the texts match after normalization
func (ta *TextAsserter) Diff(actual, expected string) string {
	act, exp := ta.normalize(actual), ta.normalize(expected)
	if act == exp {
		return ""
	}
	edits := myers.ComputeEdits("", exp, act)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", exp, edits))
	if !ta.options.EnableColors {
		return unified
	}
	return colorize(unified)
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// colorize marks removed lines red and added lines green, with visible spaces
func colorize(diff string) string {
	red, green, cyan := color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgCyan)
	for _, c := range []*color.Color{red, green, cyan} {
		c.EnableColor()
	}
	visible := strings.NewReplacer(" ", "·", "\t", "→")

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(visible.Replace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(visible.Replace(line))
		}
	}
	return strings.Join(lines, "\n")
}
