package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).Options()

	assert.True(t, opts.IgnoreExtraKeys, "IgnoreExtraKeys MUST default to true")
	assert.True(t, opts.AllowPresencePlaceholder, "AllowPresencePlaceholder MUST default to true")
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Compare(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "key order does not matter",
			actual:   `{"a":1,"b":2}`,
			expected: `{"b":2,"a":1}`,
			match:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"address":"AA","rssi":-50,"lastSeen":"2025-01-01T00:00:00Z"}`,
			expected: `{"address":"AA","rssi":-50}`,
			match:    true,
		},
		{
			name:     "extra keys significant when disabled",
			opts:     []JSONOption{WithIgnoreExtraKeys(false)},
			actual:   `{"address":"AA","rssi":-50}`,
			expected: `{"address":"AA"}`,
			match:    false,
		},
		{
			name:     "presence placeholder",
			actual:   `{"address":"AA","lastSeen":"2025-01-01T00:00:00Z"}`,
			expected: `{"address":"AA","lastSeen":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"address":"AA"}`,
			expected: `{"address":"AA","lastSeen":"<<PRESENCE>>"}`,
			match:    false,
		},
		{
			name:     "root arrays keep order",
			actual:   `[{"address":"B"},{"address":"A"}]`,
			expected: `[{"address":"A"},{"address":"B"}]`,
			match:    false,
		},
		{
			name:     "ignored fields",
			opts:     []JSONOption{WithIgnoredFields("rssi"), WithIgnoreExtraKeys(false)},
			actual:   `[{"address":"A","rssi":-40}]`,
			expected: `[{"address":"A","rssi":-90}]`,
			match:    true,
		},
		{
			name:     "value mismatch",
			actual:   `{"rssi":-40}`,
			expected: `{"rssi":-41}`,
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Empty(t, rec.messages, "matching documents MUST NOT report")
			} else {
				assert.Len(t, rec.messages, 1, "a mismatch MUST be reported once")
			}
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	diff := NewJSONAsserter(t).Diff(`{"a":`, `{}`)
	assert.Contains(t, diff, "invalid actual JSON")
}
