package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sea021/promptshop-go/internal/domain"
)

func TestIssueParse_RoundTrip(t *testing.T) {
	m := NewManager("unit-secret", time.Hour)
	token, err := m.Issue(domain.User{ID: "u1", Email: "a@b.com", Username: "alice", Role: domain.RoleAdmin})
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).Issue(domain.User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	m := NewManager("unit-secret", time.Millisecond)
	token, err := m.Issue(domain.User{ID: "u1"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Garbage(t *testing.T) {
	_, err := NewManager("unit-secret", time.Hour).Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret-pass"))
}
