package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash, "hash must differ from plaintext")
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	assert.True(t, h.Verify(hash, "pw1"))
	assert.False(t, h.Verify(hash, "pw2"))
	assert.False(t, h.Verify("", "pw1"))
	assert.False(t, h.Verify("not-a-hash", "pw1"))
}

func TestBcryptHasher_SaltsEachHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	first, err := h.Hash("same")
	require.NoError(t, err)
	second, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBcryptHasher_TooLong(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	_, err := h.Hash(strings.Repeat("x", MaxPasswordBytes+1))
	assert.Error(t, err)
}

func TestNewBcryptHasher_InvalidCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}

func TestPrincipal_Authenticate(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret")
	require.NoError(t, err)

	p := Principal{Subject: "a@x.com", PasswordHash: hash}
	assert.True(t, p.Authenticate(h, "secret"))
	assert.False(t, p.Authenticate(h, "wrong"))
	assert.False(t, Principal{PasswordHash: hash}.Authenticate(h, "secret"))
}

func TestIdentityContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	identity := &Identity{UserID: 3, Username: "alice", Email: "a@x.com"}
	ctx := NewContext(context.Background(), identity)
	assert.Same(t, identity, FromContext(ctx))
}
