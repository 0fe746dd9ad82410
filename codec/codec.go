// Package codec converts cache values to and from the bytes a Provider stores.
//
// Codecs are value-agnostic: Marshal takes any Go value and Unmarshal fills a
// pointer, the same contract as encoding/json. The Store layers its tolerant
// fallbacks on top, so codecs should report failures plainly.
package codec

import (
	"fmt"
	"sort"
)

type Codec interface {
	// Name identifies the codec in config files and logs.
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, dst any) error
}

var registry = map[string]func() (Codec, error){
	"json":    func() (Codec, error) { return JSON{}, nil },
	"msgpack": func() (Codec, error) { return Msgpack{}, nil },
	"cbor":    func() (Codec, error) { return NewCBOR(false) },
	"proto":   func() (Codec, error) { return Proto{}, nil },
	"raw":     func() (Codec, error) { return Raw{}, nil },
}

// ByName returns a ready codec for one of Names().
func ByName(name string) (Codec, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return ctor()
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
