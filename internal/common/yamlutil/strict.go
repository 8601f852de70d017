// Package yamlutil decodes configuration YAML.
package yamlutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalStrict decodes data into v, rejecting fields v does not declare.
// An empty document leaves v untouched.
func UnmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if isUnknownField(err) {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}

func isUnknownField(err error) bool {
	var typeErr *yaml.TypeError
	if !errors.As(err, &typeErr) {
		return false
	}
	for _, msg := range typeErr.Errors {
		if strings.Contains(msg, "field") && strings.Contains(msg, "not found") {
			return true
		}
	}
	return false
}
