package codec

import "fmt"

// Raw stores strings and byte slices verbatim. Anything else is rejected, which
// lets the Store fall back to its string rendering of the value.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Marshal(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("codec: raw cannot marshal %T", v)
}

func (Raw) Unmarshal(b []byte, dst any) error {
	switch d := dst.(type) {
	case *[]byte:
		*d = append((*d)[:0], b...)
	case *string:
		*d = string(b)
	case *any:
		*d = string(b)
	default:
		return fmt.Errorf("codec: raw cannot unmarshal into %T", dst)
	}
	return nil
}
