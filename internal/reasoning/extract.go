package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON finds the first balanced JSON object or array in a model
// response (handles markdown fences and surrounding prose). Returns ""
// when no balanced payload exists.
func ExtractJSON(response string) string {
	objStart := strings.IndexByte(response, '{')
	arrStart := strings.IndexByte(response, '[')

	start := objStart
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
	}
	if start == -1 {
		return ""
	}

	open := response[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	// Walk the payload tracking nesting depth, ignoring braces inside
	// JSON string literals.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}

// ParseJSON extracts the first balanced JSON payload from a response and
// unmarshals it into out. Malformed model output is an error for the
// caller to surface, never something to retry or repair.
func ParseJSON(response string, out any) error {
	payload := ExtractJSON(response)
	if payload == "" {
		return fmt.Errorf("no JSON payload in response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("malformed JSON payload: %w", err)
	}
	return nil
}
