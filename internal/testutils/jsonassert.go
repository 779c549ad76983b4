package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value
const PresencePlaceholder = "<<PRESENCE>>"

// JSONAssertOptions controls how command JSON output is compared
type JSONAssertOptions struct {
	// IgnoreExtraKeys drops object keys the expected document does not mention
	IgnoreExtraKeys bool `default:"true"`
	// IgnoredFields are removed from both sides at every depth
	IgnoredFields []string
}

// JSONOption tweaks JSONAssertOptions
type JSONOption func(*JSONAssertOptions)

// WithIgnoreExtraKeys sets JSONAssertOptions.IgnoreExtraKeys
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// WithIgnoredFields sets JSONAssertOptions.IgnoredFields
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = fields }
}

// JSONAsserter compares JSON documents structurally and reports a readable diff
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates an asserter with default options
func NewJSONAsserter(t TestingT, opts ...JSONOption) *JSONAsserter {
	o := JSONAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &JSONAsserter{t: t, options: o}
}

// Assert fails the test when actual does not match expected
func (ja *JSONAsserter) Assert(actual, expected string) bool {
	if h, ok := ja.t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if diff := ja.Diff(actual, expected); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// Diff returns an empty string when the documents match
func (ja *JSONAsserter) Diff(actual, expected string) string {
	var exp, act any
	if err := json.Unmarshal([]byte(expected), &exp); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actual), &act); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	if _, ok := exp.([]any); ok {
		exp = map[string]any{"items": exp}
		act = map[string]any{"items": act}
	}

	act = ja.normalize(exp, act)
	exp = ja.normalize(nil, exp)

	expBytes, _ := json.Marshal(exp)
	actBytes, _ := json.Marshal(act)
	diff, err := gojsondiff.New().Compare(expBytes, actBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(exp, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON documents differ (format failed: %v)", err)
	}
	return out
}

// normalize returns act with ignored fields removed, placeholders resolved
// and, when exp is given, keys unknown to exp dropped.
func (ja *JSONAsserter) normalize(exp, act any) any {
	switch a := act.(type) {
	case map[string]any:
		e, _ := exp.(map[string]any)
		out := make(map[string]any, len(a))
		for k, v := range a {
			if ja.ignored(k) {
				continue
			}
			if e != nil {
				ev, known := e[k]
				if !known && ja.options.IgnoreExtraKeys {
					continue
				}
				if ev == PresencePlaceholder {
					out[k] = PresencePlaceholder
					continue
				}
				out[k] = ja.normalize(ev, v)
				continue
			}
			out[k] = ja.normalize(nil, v)
		}
		return out
	case []any:
		e, _ := exp.([]any)
		out := make([]any, len(a))
		for i, v := range a {
			var ev any
			if i < len(e) {
				ev = e[i]
			}
			out[i] = ja.normalize(ev, v)
		}
		return out
	default:
		return act
	}
}

func (ja *JSONAsserter) ignored(key string) bool {
	for _, f := range ja.options.IgnoredFields {
		if f == key {
			return true
		}
	}
	return false
}
