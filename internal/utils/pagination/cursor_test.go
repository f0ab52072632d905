package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tok, err := Encode(Cursor{ID: "u1:CHAT_ACTIVITY", Position: 42})
	require.NoError(t, err)

	c, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1:CHAT_ACTIVITY", c.ID)
	assert.Equal(t, int64(42), c.Position)
}

func TestDecode_EmptyAndInvalid(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.True(t, c.Empty())

	_, err = Decode("%%%not-base64")
	assert.EqualError(t, err, "invalid pagination token")
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 20, Limit(0, 20, 100))
	assert.Equal(t, 100, Limit(500, 20, 100))
	assert.Equal(t, 7, Limit(7, 20, 100))
}
