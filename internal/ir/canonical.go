package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON for hashing.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Floats and null are rejected; the pipeline description never needs them
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(buf, val)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return marshalCanonical(buf, items)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := marshalCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// marshalCanonicalString writes a JSON string with NFC normalization and
// without HTML escaping.
func marshalCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
// Go's default string comparison uses UTF-8 which produces a different order.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Describe returns a canonical, float-free description of the graph: its
// inputs, functions (bodies rendered as text), schedules and outputs.
// Two graphs with equal descriptions lower to the same loop nest.
func (g *Graph) Describe() map[string]any {
	var inputs []any
	g.Inputs(func(p *Param, img *ImageParam) {
		if p != nil {
			in := map[string]any{"kind": "param", "name": p.Name, "type": p.Type.String()}
			if p.Default != nil {
				in["default"] = p.Default.String()
			}
			inputs = append(inputs, in)
			return
		}
		inputs = append(inputs, map[string]any{
			"kind": "image", "name": img.Name, "type": img.Elem.String(), "rank": img.Rank,
		})
	})

	funcs := make([]any, 0, len(g.funcs))
	for _, f := range g.funcs {
		body := ""
		if f.Body != nil {
			body = f.Body.String()
		}
		sched := make([]any, 0, len(f.Schedule.directives))
		for _, d := range f.Schedule.directives {
			sched = append(sched, d.String())
		}
		funcs = append(funcs, map[string]any{
			"name":     f.Name,
			"domain":   f.Domain,
			"body":     body,
			"schedule": sched,
		})
	}

	outputs := make([]any, 0, len(g.outputs))
	for _, o := range g.outputs {
		region := make([]any, len(o.Region))
		for i, r := range o.Region {
			region[i] = []any{r.Min, r.Extent}
		}
		outputs = append(outputs, map[string]any{"func": g.funcs[o.Func].Name, "region": region})
	}

	if inputs == nil {
		inputs = []any{}
	}
	return map[string]any{
		"name":    g.Name,
		"inputs":  inputs,
		"funcs":   funcs,
		"outputs": outputs,
	}
}
