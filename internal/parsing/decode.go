package parsing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks a provider response that could not be turned into a record
var ErrMalformed = errors.New("malformed response")

// stripFences removes the markdown code fences models like to wrap JSON in
func stripFences(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSON returns the JSON document in a response, dropping any prose
// the model put around it.
func extractJSON(response string, open, close byte) (string, error) {
	response = stripFences(response)
	start := strings.IndexByte(response, open)
	end := strings.LastIndexByte(response, close)
	if start == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON %c...%c found", ErrMalformed, open, close)
	}
	return response[start : end+1], nil
}

// decodeStrict unmarshals a JSON document and rejects trailing content
func decodeStrict(doc string, v any) error {
	dec := json.NewDecoder(strings.NewReader(doc))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON document", ErrMalformed)
	}
	return nil
}

// decodeArrayPrefix decodes the complete elements of a JSON array whose tail
// was cut off, as happens when a response hits the output token limit.
// Decoding stops at the first element that does not decode.
func decodeArrayPrefix[T any](response string) ([]T, error) {
	response = stripFences(response)
	start := strings.IndexByte(response, '[')
	if start == -1 {
		return nil, fmt.Errorf("%w: no JSON array found", ErrMalformed)
	}

	dec := json.NewDecoder(strings.NewReader(response[start:]))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var items []T
	for dec.More() {
		var item T
		if err := dec.Decode(&item); err != nil {
			break
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no complete elements in truncated array", ErrMalformed)
	}
	return items, nil
}
