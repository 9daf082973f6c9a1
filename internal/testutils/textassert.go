package testutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the asserter needs.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TextAssertOptions control how CLI output is normalized before comparison.
type TextAssertOptions struct {
	IgnoreTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines         bool `default:"false"`
	// CollapseSpaces squeezes runs of spaces, so tabwriter column widths do not matter.
	CollapseSpaces bool `default:"false"`
	// MaskClock replaces HH:MM:SS stamps with <time>.
	MaskClock    bool `default:"false"`
	EnableColors bool `default:"false"`
}

// TextOption is a functional option for configuring TextAsserter
type TextOption func(*TextAssertOptions)

// TextAsserter compares command output and reports a unified diff on mismatch.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

var (
	clockPattern  = regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}\b`)
	spacesPattern = regexp.MustCompile(` {2,}`)
)

// NewTextAsserter creates a TextAsserter with default options.
func NewTextAsserter(t TestingT) *TextAsserter {
	opts := TextAssertOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

// WithOptions applies functional options to the TextAsserter
func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// Options returns a copy of the current options.
func (ta *TextAsserter) Options() TextAssertOptions {
	return ta.options
}

// Assert compares actual text against expected text.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if diff := ta.Diff(actual, expected); diff != "" {
		ta.t.Errorf("Text assertion failed - unified diff:\n%s", diff)
		return false
	}
	return true
}

// Diff returns the unified diff between the normalized texts, or "" when they match.
func (ta *TextAsserter) Diff(actual, expected string) string {
	a := ta.normalize(actual)
	e := ta.normalize(expected)
	if a == e {
		return ""
	}

	edits := myers.ComputeEdits("", e, a)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits))
	return ta.colorize(unified)
}

func (ta *TextAsserter) colorize(diff string) string {
	if !ta.options.EnableColors {
		return diff
	}

	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(visibleWhitespace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(visibleWhitespace(line))
		}
	}
	return strings.Join(lines, "\n")
}

func visibleWhitespace(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

func (ta *TextAsserter) normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if ta.options.MaskClock {
		text = clockPattern.ReplaceAllString(text, "<time>")
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		if ta.options.CollapseSpaces {
			line = spacesPattern.ReplaceAllString(line, " ")
		}
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// WithIgnoreTrailingWhitespace sets whether to ignore trailing whitespace on each line
func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreTrailingWhitespace = ignore }
}

// WithIgnoreEmptyLines sets whether to ignore empty lines
func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreEmptyLines = ignore }
}

// WithCollapseSpaces sets whether runs of spaces compare equal to one space
func WithCollapseSpaces(collapse bool) TextOption {
	return func(opts *TextAssertOptions) { opts.CollapseSpaces = collapse }
}

// WithMaskClock sets whether HH:MM:SS stamps are ignored
func WithMaskClock(mask bool) TextOption {
	return func(opts *TextAssertOptions) { opts.MaskClock = mask }
}

// WithEnableColors sets whether to enable colored diff output
func WithEnableColors(enable bool) TextOption {
	return func(opts *TextAssertOptions) { opts.EnableColors = enable }
}
