// ABOUTME: CBOR codec registered with grpc under the "cbor" content subtype.
// ABOUTME: RawResult bypasses decoding so callers can classify malformed bodies.

package wire

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the grpc content subtype served by Codec.
const CodecName = "cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}

	encoding.RegisterCodec(Codec{})
}

// Marshal encodes v to CBOR using core deterministic encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown keys are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Codec implements encoding.Codec for wire messages.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	if r, ok := v.(*RawResult); ok {
		return r.raw, nil
	}
	return Marshal(v)
}

// Unmarshal implements encoding.Codec. The buffer grpc hands over is reused
// after this returns, so RawResult keeps a copy.
func (Codec) Unmarshal(data []byte, v any) error {
	if r, ok := v.(*RawResult); ok {
		r.raw = append(r.raw[:0], data...)
		return nil
	}
	return Unmarshal(data, v)
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}
