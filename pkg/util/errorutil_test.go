package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassesThrough(t *testing.T) {
	original := NewGuardFailed("material required")
	got := ToDomainError(original)
	assert.Equal(t, "GUARD_FAILED", got.Code)
	assert.Equal(t, http.StatusConflict, got.HTTPStatus)

	wrapped := fmt.Errorf("transition failed: %w", original)
	assert.Equal(t, "GUARD_FAILED", ToDomainError(wrapped).Code)
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	got := ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, "NOT_FOUND", got.Code)
	assert.Equal(t, http.StatusNotFound, got.HTTPStatus)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("socket closed")
	got := ToDomainError(cause)
	require.NotNil(t, got)
	assert.Equal(t, "INTERNAL_ERROR", got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.ErrorIs(t, got, cause)
}

func TestInvalidTransitionCarriesStatus(t *testing.T) {
	got := ToDomainError(NewInvalidTransition("FROZEN"))
	assert.Equal(t, "INVALID_TRANSITION", got.Code)
	assert.Equal(t, "FROZEN", got.Details["status"])
}
