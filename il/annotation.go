package il

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

var argsEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("il: failed to create CBOR enc mode: %v", err))
	}
	argsEncMode = em
}

// EncodeAnnotationArgs serializes annotation constructor arguments.
// A call without arguments encodes to nil.
func EncodeAnnotationArgs(args ...interface{}) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data, err := argsEncMode.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("il: marshal annotation args: %w", err)
	}
	return data, nil
}

// MustAnnotationArgs is EncodeAnnotationArgs that panics on error.
func MustAnnotationArgs(args ...interface{}) []byte {
	data, err := EncodeAnnotationArgs(args...)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeAnnotationArgs deserializes annotation constructor arguments.
// Integers that fit in 32 bits decode as int32; other values keep their
// CBOR-decoded Go type.
func DecodeAnnotationArgs(data []byte) ([]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []interface{}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("il: unmarshal annotation args: %w", err)
	}
	for i, v := range raw {
		switch n := v.(type) {
		case uint64:
			if n <= math.MaxInt32 {
				raw[i] = int32(n)
			}
		case int64:
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				raw[i] = int32(n)
			}
		}
	}
	return raw, nil
}
