package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Sure! {\"a\":1} Hope that helps.", `{"a":1}`, true},
		{"code fence", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, true},
		{"braces in strings", `{"s":"}{","t":"\"}"}`, `{"s":"}{","t":"\"}"}`, true},
		{"first of two", `{"a":1} {"b":2}`, `{"a":1}`, true},
		{"unterminated", `{"a":{"b":1}`, "", false},
		{"none", "no object", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_Malformed(t *testing.T) {
	res := &Result{Raw: `{"a": nope}`}
	parseJSON(res)
	assert.Nil(t, res.Parsed)
	assert.Contains(t, res.ParseError, "malformed")
}
