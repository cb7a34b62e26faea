package utils

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveJSON writes v to filepath as indented JSON.
func SaveJSON(filepath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath, err)
	}
	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath, err)
	}
	return nil
}

// LoadJSON decodes the JSON document at filepath into v.
func LoadJSON(filepath string, v any) error {
	data, err := ReadFile(filepath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath, err)
	}
	return nil
}

// ReadFile returns the raw contents of filepath.
func ReadFile(filepath string) ([]byte, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath, err)
	}
	return data, nil
}
