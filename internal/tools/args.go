package tools

import (
	"encoding/json"
	"fmt"
)

// DecodeArgs unmarshals validated tool arguments into dst.
func DecodeArgs(tool string, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInputValidation, tool, err)
	}
	return nil
}
