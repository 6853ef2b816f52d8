package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketwell/authcore/pkg/auth"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, auth.ComparePassword(hash, "correct horse battery staple"))
	assert.Error(t, auth.ComparePassword(hash, "wrong password"))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := auth.HashPassword("")
	assert.Error(t, err)
}
