package codec

import "encoding/json"

// JSON is the default codec; values land in the backend as readable JSON text.
type JSON struct{}

func (JSON) Name() string                      { return "json" }
func (JSON) Marshal(v any) ([]byte, error)     { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, dst any) error { return json.Unmarshal(b, dst) }
