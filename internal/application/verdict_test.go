package application

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name              string
		response          string
		wantOK            bool
		wantScore         float64
		wantJustification string
	}{
		{
			name:              "bare json object",
			response:          `{"score": 8.5, "justification": "solid answer"}`,
			wantOK:            true,
			wantScore:         8.5,
			wantJustification: "solid answer",
		},
		{
			name:              "json fenced block",
			response:          "Here is my verdict:\n```json\n{\"score\": 3, \"justification\": \"weak\"}\n```\nThanks!",
			wantOK:            true,
			wantScore:         3,
			wantJustification: "weak",
		},
		{
			name:              "generic fenced block",
			response:          "```\n{\"score\": 7, \"justification\": \"good\"}\n```",
			wantOK:            true,
			wantScore:         7,
			wantJustification: "good",
		},
		{
			name:              "object embedded in prose",
			response:          `After careful thought I conclude {"score": 10, "justification": "perfect {nested} braces"} as stated.`,
			wantOK:            true,
			wantScore:         10,
			wantJustification: "perfect {nested} braces",
		},
		{
			name:              "braces inside strings",
			response:          `{"score": 5, "justification": "uses \"quotes\" and } inside"}`,
			wantOK:            true,
			wantScore:         5,
			wantJustification: `uses "quotes" and } inside`,
		},
		{
			name:     "no json at all",
			response: "I would rate this highly.",
			wantOK:   false,
		},
		{
			name:     "malformed json",
			response: `{"score": "not a number", "justification": "x"}`,
			wantOK:   false,
		},
		{
			name:     "missing justification",
			response: `{"score": 4}`,
			wantOK:   false,
		},
		{
			name:     "empty response",
			response: "",
			wantOK:   false,
		},
		{
			name:     "unterminated object",
			response: `{"score": 4, "justification": "trailing`,
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseVerdict(v, tt.response)

			if !tt.wantOK {
				assert.False(t, result.ok())
				assert.NotEmpty(t, result.parseErr)
				return
			}

			require.True(t, result.ok(), "parse error: %s", result.parseErr)
			assert.Equal(t, tt.wantScore, result.verdict.Score)
			assert.Equal(t, tt.wantJustification, result.verdict.Justification)
		})
	}
}

func TestExtractJSONPrefersJSONFence(t *testing.T) {
	response := "```json\n{\"score\": 1}\n```\nand also {\"score\": 2}"
	assert.Equal(t, `{"score": 1}`, extractJSON(response))
}
