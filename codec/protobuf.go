package codec

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto frames values as a google.protobuf.Value. Go values are first
// normalised through JSON, so struct tags and field names behave exactly as
// with the JSON codec while the stored bytes stay protobuf.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) Marshal(v any) ([]byte, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(j, &generic); err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(generic)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(pv)
}

func (Proto) Unmarshal(b []byte, dst any) error {
	var pv structpb.Value
	if err := proto.Unmarshal(b, &pv); err != nil {
		return err
	}
	j, err := json.Marshal(pv.AsInterface())
	if err != nil {
		return err
	}
	return json.Unmarshal(j, dst)
}
