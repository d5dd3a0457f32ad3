package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// marshalFunctions converts a grant's function list to JSON TEXT for storage.
// Names are trimmed; an empty list is stored as [] rather than null.
func marshalFunctions(functions []string) (string, error) {
	clean := make([]string, 0, len(functions))
	for _, f := range functions {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.Contains(f, ".") {
			return "", fmt.Errorf("marshal functions: %q is not module.function", f)
		}
		clean = append(clean, f)
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("marshal functions: %w", err)
	}
	return string(data), nil
}

// unmarshalFunctions parses JSON TEXT back to a function list.
func unmarshalFunctions(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var functions []string
	if err := json.Unmarshal([]byte(data), &functions); err != nil {
		return nil, fmt.Errorf("unmarshal functions: %w", err)
	}
	if functions == nil {
		functions = []string{}
	}
	return functions, nil
}
