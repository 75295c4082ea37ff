package notify

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/jsoncodec"
	"github.com/drblury/flowguard/internal/runtime/metadata"
)

// Codec encodes notifications into message payloads.
type Codec interface {
	Marshal(n Notification) ([]byte, error)
	Unmarshal(data []byte) (Notification, error)
	ContentType() string
}

// Notification is the payload form of a raised notification.
type Notification struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes metadata.Metadata `json:"attributes"`
}

// CodecFor returns the codec registered under name: "json" or "proto".
// Empty selects JSON.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto", "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown notification codec %q", errspkg.ErrCodecRequired, name)
	}
}

// JSONCodec encodes notifications as JSON objects.
type JSONCodec struct{}

func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Marshal(n Notification) ([]byte, error) {
	return jsoncodec.Marshal(n)
}

func (JSONCodec) Unmarshal(data []byte) (Notification, error) {
	var n Notification
	if err := jsoncodec.Unmarshal(data, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ProtoCodec encodes notifications as a google.protobuf.Struct in binary wire
// format, so consumers without the Go types can still decode them.
type ProtoCodec struct{}

func (ProtoCodec) ContentType() string { return "application/x-protobuf" }

func (ProtoCodec) Marshal(n Notification) ([]byte, error) {
	attrs := make(map[string]any, len(n.Attributes))
	for k, v := range n.Attributes {
		attrs[k] = v
	}
	st, err := structpb.NewStruct(map[string]any{
		"id":         n.ID,
		"name":       n.Name,
		"attributes": attrs,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func (ProtoCodec) Unmarshal(data []byte) (Notification, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Notification{}, err
	}
	return notificationFromStruct(&st), nil
}

// ToJSON renders a protobuf-encoded notification as protojson.
func (ProtoCodec) ToJSON(data []byte) ([]byte, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return protojson.Marshal(&st)
}

func notificationFromStruct(st *structpb.Struct) Notification {
	fields := st.GetFields()
	n := Notification{
		ID:         fields["id"].GetStringValue(),
		Name:       fields["name"].GetStringValue(),
		Attributes: metadata.Metadata{},
	}
	for k, v := range fields["attributes"].GetStructValue().GetFields() {
		n.Attributes[k] = v.GetStringValue()
	}
	return n
}
