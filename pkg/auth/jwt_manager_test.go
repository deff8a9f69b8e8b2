package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundtrip(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	userID := uuid.NewString()

	token, err := mgr.Generate(userID, "employee", "Jamie", "jamie@example.com")
	require.NoError(t, err)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, "employee", claims.Role)
	assert.Equal(t, "Jamie", claims.Name)
	assert.Equal(t, "jamie@example.com", claims.Email)
}

func TestVerifyWrongSecret(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	token, err := mgr.Generate(uuid.NewString(), "client", "c", "c@example.com")
	require.NoError(t, err)

	other := NewJWTManager("another-secret", time.Hour)
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret", -time.Minute)
	token, err := mgr.Generate(uuid.NewString(), "client", "c", "c@example.com")
	require.NoError(t, err)

	_, err = mgr.Verify(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")

	token, err := ExtractTokenFromHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	r.Header.Set("Authorization", "abc.def.ghi")
	_, err = ExtractTokenFromHeader(r)
	assert.Error(t, err)
}
