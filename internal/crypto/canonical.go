package crypto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalMode produces byte-identical output for identical input on
// every call. Both signing and verification go through it; any divergence
// between the two paths would make valid signatures fail.
var canonicalMode cbor.EncMode

func init() {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("crypto: failed to build canonical cbor mode: %v", err))
	}
	canonicalMode = mode
}

// CanonicalMessage is the set of email fields covered by a signature.
type CanonicalMessage struct {
	Subject   string
	Content   string
	FromEmail string
	ToEmail   string
}

// Canonicalize returns the canonical byte encoding of the message: a
// deterministic CBOR array in fixed field order. Any single-bit change to
// a field changes the output.
func (m CanonicalMessage) Canonicalize() ([]byte, error) {
	fields := []string{m.Subject, m.Content, m.FromEmail, m.ToEmail}
	data, err := canonicalMode.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize message: %w", err)
	}
	return data, nil
}

// MarshalCanonical encodes an arbitrary value with the shared
// deterministic encoder. Used by the CA to encode certificate fields
// before signing them.
func MarshalCanonical(v interface{}) ([]byte, error) {
	data, err := canonicalMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonically: %w", err)
	}
	return data, nil
}
