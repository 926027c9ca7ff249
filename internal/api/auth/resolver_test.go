package auth

import (
	"testing"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver(t *testing.T) {
	r := NewResolver("secret", "snow-market", "Admin@Example.com")

	token, err := r.Issue(Principal{ID: "u-1", Email: "u@example.com"}, time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.ID)
	assert.Equal(t, "u@example.com", p.Email)
	assert.False(t, r.IsAdmin(p))

	t.Run("admin by email", func(t *testing.T) {
		assert.True(t, r.IsAdmin(&Principal{ID: "a", Email: "admin@example.com"}))
	})

	t.Run("admin by role", func(t *testing.T) {
		assert.True(t, r.IsAdmin(&Principal{ID: "a", Role: RoleAdmin}))
	})

	t.Run("rejections", func(t *testing.T) {
		expired, err := r.Issue(Principal{ID: "u-1"}, -time.Minute)
		require.NoError(t, err)

		other := NewResolver("other-secret", "snow-market", "")
		forged, err := other.Issue(Principal{ID: "u-1"}, time.Hour)
		require.NoError(t, err)

		wrongIssuer, err := NewResolver("secret", "elsewhere", "").Issue(Principal{ID: "u-1"}, time.Hour)
		require.NoError(t, err)

		noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "snow-market"},
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		for name, tok := range map[string]string{
			"empty":        "",
			"garbage":      "not-a-token",
			"expired":      expired,
			"forged":       forged,
			"wrong issuer": wrongIssuer,
			"no subject":   noSubject,
		} {
			_, err := r.Resolve(tok)
			assert.Equal(t, domain.KindUnauthenticated, domain.KindOf(err), name)
		}
	})
}
