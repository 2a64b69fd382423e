package application

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// jsonFormatInstruction is appended to scoring and judging prompts so
// providers without a JSON response mode still return parseable output.
const jsonFormatInstruction = "\n\nIMPORTANT: You must respond with valid JSON in exactly this format:\n" +
	`{"score": <number>, "justification": "<detailed explanation>"}`

// llmVerdict is the structured output expected from scorer and judge
// models.
type llmVerdict struct {
	// Score is the numeric verdict.
	Score float64 `json:"score"`

	// Justification explains the score.
	Justification string `json:"justification" validate:"required"`
}

// verdictResult is a tagged parse result: either a verdict or the
// reason parsing failed. Parse failures are a first-class branch of
// pipeline handling, not an exception path; callers persist a null
// value with the reason rather than dropping the record.
type verdictResult struct {
	verdict  llmVerdict
	parseErr string
}

// ok reports whether the response parsed into a usable verdict.
func (r verdictResult) ok() bool { return r.parseErr == "" }

// parseVerdict extracts and validates the structured verdict from a raw
// model response. It never returns an error; failure is encoded in the
// result.
func parseVerdict(v *validator.Validate, response string) verdictResult {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return verdictResult{parseErr: fmt.Sprintf(
			"no valid JSON found in response (%d chars)", len(response))}
	}

	var verdict llmVerdict
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		return verdictResult{parseErr: fmt.Sprintf("malformed JSON verdict: %v", err)}
	}

	if err := v.Struct(verdict); err != nil {
		return verdictResult{parseErr: fmt.Sprintf("invalid verdict structure: %v", err)}
	}

	return verdictResult{verdict: verdict}
}

// extractJSON pulls a JSON object out of a response that may wrap it in
// markdown fences or surrounding prose. It handles ```json blocks,
// generic code fences, and bare objects with nested braces and strings.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```json") {
		start := strings.Index(response, "```json") + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if strings.Contains(response, "```") {
		start := strings.Index(response, "```") + 3
		// Skip any language identifier on the fence line.
		if newline := strings.Index(response[start:], "\n"); newline != -1 {
			start += newline + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find the matching closing brace, tracking strings and escapes.
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(response); i++ {
		char := response[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	return ""
}
