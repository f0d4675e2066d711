package store

import (
	"encoding/json"
	"fmt"
)

// marshalClasses serializes the class table. A nil table is stored as [].
func marshalClasses(classes []string) (string, error) {
	if classes == nil {
		classes = []string{}
	}
	data, err := json.Marshal(classes)
	if err != nil {
		return "", fmt.Errorf("marshal classes: %w", err)
	}
	return string(data), nil
}

func unmarshalClasses(s string) ([]string, error) {
	var classes []string
	if err := json.Unmarshal([]byte(s), &classes); err != nil {
		return nil, fmt.Errorf("unmarshal classes: %w", err)
	}
	return classes, nil
}

// marshalRejections serializes rejection counts. encoding/json sorts map
// keys, so equal maps produce equal text.
func marshalRejections(r map[string]int) (string, error) {
	if r == nil {
		return "{}", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal rejections: %w", err)
	}
	return string(data), nil
}

func unmarshalRejections(s string) (map[string]int, error) {
	var r map[string]int
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("unmarshal rejections: %w", err)
	}
	if len(r) == 0 {
		return nil, nil
	}
	return r, nil
}
