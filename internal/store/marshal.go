package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/nestc/internal/ir"
)

// marshalSignature converts a signature to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so equal signatures store equal text.
func marshalSignature(sig []SignatureArg) (string, error) {
	items := make([]any, len(sig))
	for i, a := range sig {
		region := make([]any, len(a.Region))
		for d, r := range a.Region {
			region[d] = []any{r[0], r[1]}
		}
		m := map[string]any{
			"name":   a.Name,
			"kind":   a.Kind,
			"type":   a.Type,
			"rank":   a.Rank,
			"region": region,
		}
		if a.Default != "" {
			m["default"] = a.Default
		}
		items[i] = m
	}
	data, err := ir.MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("marshal signature: %w", err)
	}
	return string(data), nil
}

// unmarshalSignature parses signature TEXT written by marshalSignature.
func unmarshalSignature(data string) ([]SignatureArg, error) {
	if data == "" || data == "[]" {
		return []SignatureArg{}, nil
	}
	var sig []SignatureArg
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signature: %w", err)
	}
	return sig, nil
}
