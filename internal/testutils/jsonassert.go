package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Presence matches any value of an expected key.
const Presence = "<<PRESENCE>>"

// MustJSON marshals v or panics.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// JSONAssertOptions controls JSON comparison.
type JSONAssertOptions struct {
	IgnoreExtraKeys bool     `default:"true"`
	IgnoredFields   []string `default:""`
}

// JSONOption configures a JSONAsserter.
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a JSONAsserter with default options.
func NewJSONAsserter(t TestingT, opts ...JSONOption) *JSONAsserter {
	o := JSONAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &JSONAsserter{t: t, options: o}
}

// WithIgnoredFields removes keys at any depth from both sides.
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = fields }
}

// WithIgnoreExtraKeys toggles whether keys only present in actual are ignored.
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	if diff := ja.Diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// Diff returns a readable diff, empty when the documents match.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	if _, ok := expected.([]any); ok {
		expected = map[string]any{"array": expected}
		actual = map[string]any{"array": actual}
	}

	fillPresence(expected, actual)
	for _, field := range ja.options.IgnoredFields {
		dropKey(expected, field)
		dropKey(actual, field)
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
	out, _ := f.Format(diff)
	return out
}

// fillPresence copies actual values over Presence placeholders.
func fillPresence(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, _ := actual.(map[string]any)
		for k, v := range exp {
			if v == Presence {
				if av, ok := act[k]; ok {
					exp[k] = av
				}
				continue
			}
			fillPresence(v, act[k])
		}
	case []any:
		act, _ := actual.([]any)
		for i := range exp {
			if i < len(act) {
				fillPresence(exp[i], act[i])
			}
		}
	}
}

func dropKey(v any, key string) {
	switch t := v.(type) {
	case map[string]any:
		delete(t, key)
		for _, child := range t {
			dropKey(child, key)
		}
	case []any:
		for _, child := range t {
			dropKey(child, key)
		}
	}
}

// pruneExtraKeys removes keys from actual that expected does not mention.
func pruneExtraKeys(actual, expected any) {
	switch act := actual.(type) {
	case map[string]any:
		exp, ok := expected.(map[string]any)
		if !ok {
			return
		}
		for k := range act {
			ev, ok := exp[k]
			if !ok {
				delete(act, k)
				continue
			}
			pruneExtraKeys(act[k], ev)
		}
	case []any:
		exp, ok := expected.([]any)
		if !ok {
			return
		}
		for i := range act {
			if i < len(exp) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}
