package packet

import "fmt"

// hasBinary reports whether data contains a []byte anywhere in its tree.
func hasBinary(data any) bool {
	switch v := data.(type) {
	case nil:
		return false
	case []byte:
		return true
	case []any:
		for _, item := range v {
			if hasBinary(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range v {
			if hasBinary(item) {
				return true
			}
		}
	}
	return false
}

// deconstruct walks data, replacing every []byte with a Placeholder and
// appending the extracted bytes (in traversal order) to *attachments.
func deconstruct(data any, attachments *[][]byte) any {
	switch v := data.(type) {
	case []byte:
		idx := len(*attachments)
		*attachments = append(*attachments, v)
		return Placeholder{Placeholder: true, Num: idx}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deconstruct(item, attachments)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deconstruct(item, attachments)
		}
		return out
	default:
		return data
	}
}

// reconstruct is the inverse of deconstruct: it walks data (as decoded from
// JSON, so placeholders arrive as map[string]any) and substitutes each
// placeholder with its corresponding attachment buffer.
func reconstruct(data any, attachments [][]byte) (any, error) {
	switch v := data.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := reconstruct(item, attachments)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		if num, ok := placeholderIndex(v); ok {
			if num < 0 || num >= len(attachments) {
				return nil, fmt.Errorf("%w: placeholder %d out of range (%d attachments)", ErrInvalidPacket, num, len(attachments))
			}
			return attachments[num], nil
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := reconstruct(item, attachments)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return data, nil
	}
}

// placeholderIndex reports whether m is a decoded {"_placeholder":true,"num":N} object.
func placeholderIndex(m map[string]any) (int, bool) {
	flag, ok := m["_placeholder"].(bool)
	if !ok || !flag {
		return 0, false
	}
	num, ok := m["num"].(float64) // encoding/json decodes all JSON numbers as float64
	if !ok {
		return 0, false
	}
	return int(num), true
}
