package channel

import (
	"fmt"

	"github.com/callsink/callsink-go/contracts"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field number of the payload field in the default Event contract:
//
//	message Event { string payload = 1; }
const eventPayloadField = 1

// eventCodec frames contracts.Event on the wire without carrying generated
// code for a one-field message. Unknown fields on the response are skipped,
// so a server sending a wider message stays compatible.
type eventCodec struct{}

func (eventCodec) Marshal(v any) ([]byte, error) {
	event, ok := v.(*contracts.Event)
	if !ok {
		return nil, fmt.Errorf("event codec: cannot marshal %T", v)
	}
	if event.Payload == "" {
		return nil, nil
	}
	var buf []byte
	buf = protowire.AppendTag(buf, eventPayloadField, protowire.BytesType)
	buf = protowire.AppendString(buf, event.Payload)
	return buf, nil
}

func (eventCodec) Unmarshal(data []byte, v any) error {
	event, ok := v.(*contracts.Event)
	if !ok {
		return fmt.Errorf("event codec: cannot unmarshal into %T", v)
	}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if num == eventPayloadField && typ == protowire.BytesType {
			payload, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			event.Payload = payload
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

func (eventCodec) Name() string {
	return "callsink-event"
}

// rawCodec passes generic-mode bytes through untouched; the external codec
// collaborator owns the wire format.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch data := v.(type) {
	case []byte:
		return data, nil
	case *[]byte:
		return *data, nil
	default:
		return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	target, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*target = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string {
	return "callsink-raw"
}

// codecFor selects the wire codec by request type: the Event codec for the
// default contract, raw passthrough for generic mode.
func codecFor(req any) encoding.Codec {
	if _, ok := req.(*contracts.Event); ok {
		return eventCodec{}
	}
	return rawCodec{}
}
