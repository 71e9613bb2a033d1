// Package json provides JSON utilities for tool arguments and model output.
//
// Tool arguments arrive as streamed fragments and model answers often wrap
// JSON in prose or markdown fences. This package turns both into valid JSON.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// extractJSON finds and returns the JSON portion of a response string.
// It handles common response patterns:
// 1. Pure JSON response - returns the full response
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. JSON object or array embedded in text - first opening to last closing bracket
//
// Limitations:
// - Uses simple bracket matching, not full JSON parsing
// - May fail if brackets appear in strings or are unbalanced
func extractJSON(response string) (string, error) {
	// Strip markdown code blocks if present
	response = stripMarkdownCodeBlocks(response)

	// Try full response first
	if json.Valid([]byte(response)) {
		return response, nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(response, pair[0])
		if start == -1 {
			continue
		}
		end := strings.LastIndex(response, pair[1])
		if end > start && json.Valid([]byte(response[start:end+1])) {
			return response[start : end+1], nil
		}
	}

	// Create a preview for the error message
	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// stripMarkdownCodeBlocks removes markdown code block markers from a response.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// ExtractJSON extracts the JSON portion from a response string.
// Returns the raw JSON string suitable for further processing.
func ExtractJSON(response string) (string, error) {
	return extractJSON(response)
}

// Decode extracts JSON from text and unmarshals it into T. Bracketed text that
// holds no valid JSON is repaired before giving up.
func Decode[T any](text string) (T, error) {
	var result T
	raw, err := extractJSON(text)
	if err != nil {
		if !strings.ContainsAny(text, "{[") {
			return result, err
		}
		repaired, repairErr := jsonrepair.JSONRepair(stripMarkdownCodeBlocks(text))
		if repairErr != nil {
			return result, err
		}
		raw = repaired
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// RepairPartial turns a possibly truncated JSON fragment, such as streamed tool
// arguments, into valid JSON. Empty input becomes "{}". Input that cannot be
// repaired is returned unchanged.
func RepairPartial(fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return "{}"
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil || !json.Valid([]byte(repaired)) {
		return fragment
	}
	return repaired
}

// Compact encodes v as compact JSON. Values that cannot be encoded yield "{}".
func Compact(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Pretty indents the JSON held in text for display. Text without JSON is
// returned unchanged.
func Pretty(text string) string {
	raw, err := extractJSON(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return text
	}
	return buf.String()
}
