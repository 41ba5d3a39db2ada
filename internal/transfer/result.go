package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the JSON body answered by the import endpoint.
type Result struct {
	Success bool      `json:"success"`
	Errors  ErrorText `json:"errors,omitempty"`
}

// ErrorText is the server supplied rejection detail. It decodes from a string or from a
// list of strings, which are joined with newlines.
type ErrorText string

func (e *ErrorText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ErrorText(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("errors must be a string or a list of strings: %w", err)
	}
	*e = ErrorText(strings.Join(list, "\n"))
	return nil
}

func decodeResult(body []byte) (Result, error) {
	var res Result
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&res); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return res, nil
}
