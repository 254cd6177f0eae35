package signing

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	expires, sig := s.Headers("/demandes/42", time.Minute)
	assert.Equal(t, strconv.FormatInt(1700000060, 10), expires)
	assert.NotEmpty(t, sig)
	assert.True(t, s.Validate("/demandes/42", expires, sig))
	assert.False(t, s.Validate("/demandes/43", expires, sig))
	assert.False(t, s.Validate("/demandes/42", "1700000120", sig))
	assert.False(t, s.Validate("/demandes/42", "soon", sig))

	s.now = func() time.Time { return time.Unix(1700000061, 0) }
	assert.False(t, s.Validate("/demandes/42", expires, sig))
}

func TestSignersWithDifferentSecretsDisagree(t *testing.T) {
	a := NewSigner([]byte("a"))
	b := NewSigner([]byte("b"))
	assert.NotEqual(t, a.Sign("/bilans/1", 1), b.Sign("/bilans/1", 1))
}
