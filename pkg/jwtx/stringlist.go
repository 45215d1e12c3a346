package jwtx

import (
	"bytes"
	"encoding/json"
)

// StringList is a claim that holds one or more strings. A single value is
// encoded as a plain JSON string and several as an array, the way "aud" is
// handled by RFC 7519. Both forms decode.
type StringList []string

func (s StringList) MarshalJSON() ([]byte, error) {
	switch len(s) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(s[0])
	default:
		return json.Marshal([]string(s))
	}
}

func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = StringList{one}
		return nil
	default:
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return ErrInvalidClaim
		}
		*s = many
		return nil
	}
}
