package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Language models are instructed to return strict JSON but routinely wrap it
// in prose, use single quotes, or leave trailing commas. DecodeJSON scrapes
// the first JSON object out of raw output and unmarshals it after light
// repairs. Callers substitute a conservative default when it fails; parse
// errors never cross a component boundary.

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ErrNoJSON is returned when raw output contains no JSON object at all.
var ErrNoJSON = fmt.Errorf("no JSON object found in model output")

// DecodeJSON extracts the first balanced JSON object from raw and unmarshals
// it into v, applying quote and trailing-comma repairs when a strict parse
// fails.
func DecodeJSON(raw string, v any) error {
	obj, ok := extractObject(raw)
	if !ok {
		return ErrNoJSON
	}

	if err := json.Unmarshal([]byte(obj), v); err == nil {
		return nil
	}

	repaired := trailingComma.ReplaceAllString(obj, "$1")
	if err := json.Unmarshal([]byte(repaired), v); err == nil {
		return nil
	}

	// Last resort: models occasionally emit Python-style single quotes.
	repaired = trailingComma.ReplaceAllString(strings.ReplaceAll(obj, "'", `"`), "$1")
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("unmarshalling model output: %w", err)
	}
	return nil
}

// extractObject returns the first balanced {...} block in s, tracking string
// literals so braces inside values don't break the scan.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
