package types

import (
	"fmt"
	"strings"
)

// OutputFormat selects how a traced page is exported
type OutputFormat string

const (
	OutputHAR  OutputFormat = "har"
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat parses a case-insensitive output format name
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputHAR, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be har or json)", s)
	}
}

// Extension returns the file extension used for exports in this format
func (f OutputFormat) Extension() string {
	if f == OutputJSON {
		return ".json"
	}
	return ".har"
}

// CompressionFormat names the codec applied to stored exports
type CompressionFormat string

const (
	CompressionNone   CompressionFormat = "none"
	CompressionSnappy CompressionFormat = "snappy"
	CompressionLZ4    CompressionFormat = "lz4"
)

// Valid reports whether f is a known codec
func (f CompressionFormat) Valid() bool {
	switch f {
	case CompressionNone, CompressionSnappy, CompressionLZ4:
		return true
	}
	return false
}
