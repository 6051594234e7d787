// Wire format for telemetry frames exchanged between nodes.
//
// A frame is a CBOR array of [message type, [field values...]]. CBOR items are self-delimiting,
// so a byte stream of concatenated frames can be split without any extra framing, and a trailing
// partial frame is simply left for the next decode call.
package frame

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

type MessageType uint16

// Single decoded message. Field values are ordered as declared by the message schema.
type Frame struct {
	Type   MessageType
	Fields []any
}

type wireFrame struct {
	_      struct{} `cbor:",toarray"`
	Type   MessageType
	Fields []any
}

var (
	ErrMalformed = errors.New("malformed frame bytes")

	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("frame: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxArrayElements: 1024,
	}.DecMode()
	if err != nil {
		panic("frame: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encodes the frame into its self-delimiting wire form
func (f Frame) Serialize() (data []byte, err error) {
	fields := f.Fields
	if fields == nil {
		fields = []any{}
	}

	data, err = encMode.Marshal(wireFrame{Type: f.Type, Fields: fields})
	if err != nil {
		err = fmt.Errorf("failed to encode frame type %d: %w", f.Type, err)
	}
	return
}

// Decodes as many complete frames as buf holds.
// rest is the undecoded tail: a partial frame when err is nil, or the bytes starting at the
// offending frame when err wraps ErrMalformed.
func DeserializeMany(buf []byte) (frames []Frame, rest []byte, err error) {
	rest = buf
	for len(rest) > 0 {
		var wf wireFrame

		remaining, decodeErr := decMode.UnmarshalFirst(rest, &wf)
		if decodeErr != nil {
			if errors.Is(decodeErr, io.ErrUnexpectedEOF) || errors.Is(decodeErr, io.EOF) {
				// Incomplete trailing frame
				return
			}
			err = fmt.Errorf("%w: %v", ErrMalformed, decodeErr)
			return
		}

		if wf.Fields == nil {
			wf.Fields = []any{}
		}
		frames = append(frames, Frame{Type: wf.Type, Fields: wf.Fields})
		rest = remaining
	}
	return
}

// Deep copy so stamping one frame never aliases another
func (f Frame) Clone() (c Frame) {
	c.Type = f.Type
	c.Fields = append(make([]any, 0, len(f.Fields)), f.Fields...)
	return
}
