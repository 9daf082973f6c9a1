package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value of that key.
const PresencePlaceholder = "<<PRESENCE>>"

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool `default:"true"`
	AllowPresencePlaceholder bool `default:"true"`
	IgnoredFields            []string
}

// JSONOption is a functional option for configuring JSONAsserter
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a gojsondiff
// delta on mismatch.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

func (ja *JSONAsserter) Options() JSONAssertOptions {
	return ja.options
}

// Assert compares actualJSON against expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	diff := ja.Diff(actualJSON, expectedJSON)
	if diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// Diff returns "" when the documents match under the options.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	if isArray(expected) || isArray(actual) {
		expected = map[string]interface{}{"array": expected}
		actual = map[string]interface{}{"array": actual}
	}

	if ja.options.AllowPresencePlaceholder {
		replacePresenceWithActual(expected, actual)
	}
	if len(ja.options.IgnoredFields) > 0 {
		removeIgnoredFields(expected, actual, ja.options.IgnoredFields)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON documents differ (format failed: %v)", err)
	}
	return out
}

func isArray(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}

// replacePresenceWithActual copies actual values over placeholders.
func replacePresenceWithActual(expected, actual interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k := range exp {
			if s, ok := exp[k].(string); ok && s == PresencePlaceholder {
				if v, present := act[k]; present {
					exp[k] = v
				}
				continue
			}
			replacePresenceWithActual(exp[k], act[k])
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				replacePresenceWithActual(exp[i], act[i])
			}
		}
	}
}

// pruneExtraKeys removes keys of actual that expected does not mention.
func pruneExtraKeys(actual, expected interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k := range act {
			if _, exists := exp[k]; !exists {
				delete(act, k)
			}
		}
		for k := range exp {
			pruneExtraKeys(act[k], exp[k])
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

func removeIgnoredFields(expected, actual interface{}, fields []string) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, _ := actual.(map[string]interface{})
		for _, field := range fields {
			delete(exp, field)
			delete(act, field)
		}
		for k := range exp {
			removeIgnoredFields(exp[k], act[k], fields)
		}
	case []interface{}:
		act, _ := actual.([]interface{})
		for i := range exp {
			if i < len(act) {
				removeIgnoredFields(exp[i], act[i], fields)
			}
		}
	}
}

// WithIgnoreExtraKeys sets whether keys missing from expected are ignored
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoreExtraKeys = ignore }
}

// WithAllowPresencePlaceholder sets whether PresencePlaceholder is honoured
func WithAllowPresencePlaceholder(allow bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.AllowPresencePlaceholder = allow }
}

// WithIgnoredFields drops these keys at every level before comparing
func WithIgnoredFields(fields ...string) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoredFields = fields }
}
