package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToken(t *testing.T) {
	tok, err := DecodeToken("APA91b:query:#cat")
	require.NoError(t, err)
	assert.Equal(t, Token{RegistrationID: "APA91b", TypeID: "query", Payload: "#cat"}, tok)

	// The payload keeps any further delimiters.
	tok, err = DecodeToken("reg:query:a:b:c")
	require.NoError(t, err)
	assert.Equal(t, "a:b:c", tok.Payload)

	tok, err = DecodeToken("reg:query:")
	require.NoError(t, err)
	assert.Equal(t, "", tok.Payload)
}

func TestDecodeTokenMalformed(t *testing.T) {
	for _, s := range []string{"", "reg", "reg:query", ":query:x", "reg::x"} {
		_, err := DecodeToken(s)
		assert.ErrorIs(t, err, ErrMalformedToken, s)
	}
}

func TestEncodeToken(t *testing.T) {
	s, err := EncodeToken(Token{RegistrationID: "reg", TypeID: TypeQuery, Payload: "x:y"})
	require.NoError(t, err)
	assert.Equal(t, "reg:query:x:y", s)

	back, err := DecodeToken(s)
	require.NoError(t, err)
	assert.Equal(t, "x:y", back.Payload)

	_, err = EncodeToken(Token{RegistrationID: "re:g", TypeID: TypeQuery})
	assert.ErrorIs(t, err, ErrMalformedToken)
	_, err = EncodeToken(Token{RegistrationID: "reg"})
	assert.ErrorIs(t, err, ErrMalformedToken)
}
