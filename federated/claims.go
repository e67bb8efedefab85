package federated

import (
	"bytes"
	"errors"
)

// looseBool accepts JSON true/false as well as the string forms "true" and
// "false". Apple encodes email_verified and is_private_email as strings in
// some token versions.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte(`"true"`)):
		*b = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte(`"false"`)):
		*b = false
	case bytes.Equal(data, []byte("null")):
		*b = false
	default:
		return errors.New("invalid boolean claim")
	}
	return nil
}
