package testutils

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// presenceMarker in an expected document matches any actual value, as long
// as the key exists.
const presenceMarker = "<<PRESENCE>>"

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	NilToEmptyArray          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	CompareOnlyExpectedKeys  bool     `default:"false"`
	IgnoredFields            []string `default:""`
	IgnoreArrayOrder         bool     `default:"false"`
}

// Option is a functional option for configuring JSONAsserter
type Option func(*JSONAssertOptions)

// WithIgnoreExtraKeys sets whether extra keys in the actual JSON are ignored
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(opts *JSONAssertOptions) { opts.IgnoreExtraKeys = ignore }
}

// WithNilToEmptyArray sets whether null and [] compare equal
func WithNilToEmptyArray(normalize bool) Option {
	return func(opts *JSONAssertOptions) { opts.NilToEmptyArray = normalize }
}

// WithAllowPresencePlaceholder sets whether "<<PRESENCE>>" placeholders are honored
func WithAllowPresencePlaceholder(allow bool) Option {
	return func(opts *JSONAssertOptions) { opts.AllowPresencePlaceholder = allow }
}

// WithCompareOnlyExpectedKeys restricts the comparison to keys the
// expected document mentions
func WithCompareOnlyExpectedKeys(only bool) Option {
	return func(opts *JSONAssertOptions) { opts.CompareOnlyExpectedKeys = only }
}

// WithIgnoredFields sets field names excluded from comparison at any depth
func WithIgnoredFields(fields ...string) Option {
	return func(opts *JSONAssertOptions) { opts.IgnoredFields = fields }
}

// WithIgnoreArrayOrder sets whether array element order is ignored
func WithIgnoreArrayOrder(ignore bool) Option {
	return func(opts *JSONAssertOptions) { opts.IgnoreArrayOrder = ignore }
}

// JSONAsserter compares JSON documents structurally and reports
// differences as a readable diff. The expected document may use the
// "<<PRESENCE>>" placeholder for values that only need to exist.
type JSONAsserter struct {
	t       *testing.T
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options
func NewJSONAsserter(t *testing.T) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions applies functional options to the JSONAsserter
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// GetOptions returns a copy of the current options
func (ja *JSONAsserter) GetOptions() JSONAssertOptions {
	return ja.options
}

// MustJSON marshals v or panics. For building expected documents inline.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

// AssertDevice compares an actual DeviceInfo against expectedJSON
func (ja *JSONAsserter) AssertDevice(dev device.DeviceInfo, expectedJSON string) {
	ja.Assert(DeviceToJSON(dev), expectedJSON)
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff cannot compare root-level arrays, so wrap them
	if isJSONArray(expected) && isJSONArray(actual) {
		expected = map[string]interface{}{"array": expected}
		actual = map[string]interface{}{"array": actual}
	}

	if ja.options.AllowPresencePlaceholder {
		resolvePresencePlaceholders(expected, actual)
	}
	if ja.options.NilToEmptyArray {
		normalizeNilArrays(expected, actual)
	}

	// Ignored fields must go before array sorting: a field like a call
	// counter would otherwise influence the sort key of elements that are
	// equal in every compared respect
	if len(ja.options.IgnoredFields) > 0 {
		removeIgnoredFields(expected, actual, ja.options.IgnoredFields)
	}
	// Sort before pruning extra keys so elements align
	if ja.options.IgnoreArrayOrder {
		sortArrays(expected)
		sortArrays(actual)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}
	if ja.options.CompareOnlyExpectedKeys {
		extractOnlyExpectedKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	result, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !result.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	})
	diffString, _ := f.Format(result)
	return diffString
}

// resolvePresencePlaceholders copies actual values over presence markers
// so they compare equal whatever the value is.
func resolvePresencePlaceholders(expected, actual interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for key, val := range exp {
			if marker, ok := val.(string); ok && marker == presenceMarker {
				exp[key] = act[key]
				continue
			}
			resolvePresencePlaceholders(val, act[key])
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i, val := range exp {
			if i >= len(act) {
				return
			}
			resolvePresencePlaceholders(val, act[i])
		}
	}
}

// normalizeNilArrays equates null with an empty array, but only where the
// other side is nil or an empty array too.
func normalizeNilArrays(expected, actual interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for key := range exp {
			ev, av := exp[key], act[key]
			if !nilArrayEquivalent(ev, av) {
				normalizeNilArrays(ev, av)
				continue
			}
			if ev == nil {
				exp[key] = []interface{}{}
			}
			if av == nil {
				act[key] = []interface{}{}
			}
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				break
			}
			if !nilArrayEquivalent(exp[i], act[i]) {
				normalizeNilArrays(exp[i], act[i])
				continue
			}
			if exp[i] == nil {
				exp[i] = []interface{}{}
			}
			if act[i] == nil {
				act[i] = []interface{}{}
			}
		}
	}
}

// nilArrayEquivalent reports whether one side is nil and the other is nil
// or an empty array. Two empty arrays are already equal and not our
// business here.
func nilArrayEquivalent(a, b interface{}) bool {
	if a != nil && b != nil {
		return false
	}
	return emptyOrNilArray(a) && emptyOrNilArray(b)
}

func emptyOrNilArray(v interface{}) bool {
	if v == nil {
		return true
	}
	arr, ok := v.([]interface{})
	return ok && len(arr) == 0
}

// removeIgnoredFields deletes the named fields from both documents at
// every nesting level.
func removeIgnoredFields(expected, actual interface{}, fields []string) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for _, name := range fields {
			delete(exp, name)
			delete(act, name)
		}
		for key, ev := range exp {
			if av, present := act[key]; present {
				removeIgnoredFields(ev, av, fields)
			}
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i, ev := range exp {
			if i >= len(act) {
				break
			}
			removeIgnoredFields(ev, act[i], fields)
		}
	}
}

// sortArrays orders array elements by their JSON representation, at every
// nesting level, for order-independent comparison.
func sortArrays(doc interface{}) {
	switch v := doc.(type) {
	case map[string]interface{}:
		for _, val := range v {
			sortArrays(val)
		}
	case []interface{}:
		sort.Slice(v, func(i, j int) bool {
			a, _ := json.Marshal(v[i])
			b, _ := json.Marshal(v[j])
			return string(a) < string(b)
		})
		for _, elem := range v {
			sortArrays(elem)
		}
	}
}

// pruneExtraKeys removes keys from actual that expected does not mention.
func pruneExtraKeys(actual, expected interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for key := range act {
			if _, kept := exp[key]; !kept {
				delete(act, key)
			}
		}
		for key, ev := range exp {
			pruneExtraKeys(act[key], ev)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i, ev := range exp {
			if i >= len(act) {
				break
			}
			pruneExtraKeys(act[i], ev)
		}
	}
}

// extractOnlyExpectedKeys rebuilds actual in place keeping only keys the
// expected document mentions, recursively.
func extractOnlyExpectedKeys(actual, expected interface{}) interface{} {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return actual
		}
		kept := make(map[string]interface{}, len(exp))
		for key, ev := range exp {
			if av, present := act[key]; present {
				kept[key] = extractOnlyExpectedKeys(av, ev)
			}
		}
		for key := range act {
			delete(act, key)
		}
		for key, val := range kept {
			act[key] = val
		}
		return act
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return actual
		}
		for i, ev := range exp {
			if i >= len(act) {
				break
			}
			act[i] = extractOnlyExpectedKeys(act[i], ev)
		}
		return act
	default:
		return actual
	}
}

func isJSONArray(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}
