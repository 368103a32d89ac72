// Package push receives backend push notifications and routes them to the
// component that owns their type.
//
// Every notification carries one token of the form
//
//	<registration id>:<type id>:<payload>
//
// For the "query" type the payload is the id of the continuous query whose
// results changed.
package push

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
)

// TypeQuery marks notifications about continuous query results.
const TypeQuery = constants.PushTypeIDQuery

var ErrMalformedToken = errors.New("malformed push token")

type Token struct {
	RegistrationID string
	TypeID         string
	// Payload is opaque and may itself contain the delimiter.
	Payload string
}

// EncodeToken renders t in wire form. Registration and type ids must be
// non-empty and free of the delimiter.
func EncodeToken(t Token) (string, error) {
	if err := checkPart("registration id", t.RegistrationID); err != nil {
		return "", err
	}
	if err := checkPart("type id", t.TypeID); err != nil {
		return "", err
	}
	return t.RegistrationID + constants.TokenDelimiter + t.TypeID + constants.TokenDelimiter + t.Payload, nil
}

// DecodeToken splits on the first two delimiters only.
func DecodeToken(s string) (Token, error) {
	parts := strings.SplitN(s, constants.TokenDelimiter, 3)
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("%w: %q has %d parts", ErrMalformedToken, s, len(parts))
	}
	t := Token{RegistrationID: parts[0], TypeID: parts[1], Payload: parts[2]}
	if t.RegistrationID == "" || t.TypeID == "" {
		return Token{}, fmt.Errorf("%w: %q has an empty id", ErrMalformedToken, s)
	}
	return t, nil
}

func (t Token) String() string {
	return t.RegistrationID + constants.TokenDelimiter + t.TypeID + constants.TokenDelimiter + t.Payload
}

func checkPart(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", ErrMalformedToken, name)
	}
	if strings.Contains(v, constants.TokenDelimiter) {
		return fmt.Errorf("%w: %s %q contains %q", ErrMalformedToken, name, v, constants.TokenDelimiter)
	}
	return nil
}
