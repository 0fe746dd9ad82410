package codec

import "fmt"

// Limit wraps another codec to enforce a maximum payload size at Unmarshal
// time. Marshal is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// Typical use: protect against oversized values written into a shared cache
// by another service.
type Limit struct {
	Inner     Codec
	MaxDecode int
}

func (c Limit) Name() string                  { return c.Inner.Name() }
func (c Limit) Marshal(v any) ([]byte, error) { return c.Inner.Marshal(v) }

func (c Limit) Unmarshal(b []byte, dst any) error {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Unmarshal(b, dst)
}
