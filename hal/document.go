package hal

import (
	"encoding/json"
	"fmt"
	"io"
)

// Metadata is the envelope header of every wrapped response.
type Metadata struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
	// Cached is set on responses served from the pre-cache.
	Cached bool `json:"cached,omitempty"`
}

// Document is a wrapped API response: {"metadata": {...}, "data": {...}}.
type Document struct {
	Metadata Metadata  `json:"metadata"`
	Data     *Resource `json:"data"`
}

// Parse decodes a wrapped response body.
func Parse(b []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("hal: document: %w", err)
	}
	return &doc, nil
}

// Decode reads and decodes a wrapped response body.
func Decode(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}
