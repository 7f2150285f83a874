package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"field": "Color"}`,
			want:     `{"field": "Color"}`,
		},
		{
			name:     "markdown fenced object",
			response: "```json\n{\"field\": \"Color\"}\n```",
			want:     `{"field": "Color"}`,
		},
		{
			name:     "prose around object",
			response: `Here is the mapping: {"field": "Color"} as requested.`,
			want:     `{"field": "Color"}`,
		},
		{
			name:     "nested object",
			response: `{"outer": {"inner": 1}}`,
			want:     `{"outer": {"inner": 1}}`,
		},
		{
			name:     "array payload",
			response: "The tests are:\n[{\"id\": 1}, {\"id\": 2}]",
			want:     `[{"id": 1}, {"id": 2}]`,
		},
		{
			name:     "array before object",
			response: `[1, 2] and then {"a": 1}`,
			want:     `[1, 2]`,
		},
		{
			name:     "brace inside string literal",
			response: `{"text": "closing } brace"}`,
			want:     `{"text": "closing } brace"}`,
		},
		{
			name:     "escaped quote inside string",
			response: `{"text": "a \" quote"}`,
			want:     `{"text": "a \" quote"}`,
		},
		{
			name:     "no payload",
			response: "I could not produce any mapping.",
			want:     "",
		},
		{
			name:     "unbalanced object",
			response: `{"field": "Color"`,
			want:     "",
		},
		{
			name:     "empty response",
			response: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.response))
		})
	}
}

func TestParseJSON(t *testing.T) {
	var obj struct {
		Field string `json:"field"`
	}
	require.NoError(t, ParseJSON("```json\n{\"field\": \"Region\"}\n```", &obj))
	assert.Equal(t, "Region", obj.Field)

	var arr []int
	require.NoError(t, ParseJSON("result: [1, 2, 3]", &arr))
	assert.Equal(t, []int{1, 2, 3}, arr)
}

func TestParseJSONMalformed(t *testing.T) {
	var out map[string]any
	assert.Error(t, ParseJSON("no payload here", &out))
	assert.Error(t, ParseJSON(`{"field": unquoted}`, &out))
}
