package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Validation("bad").StatusCode())
	assert.Equal(t, http.StatusUnauthorized, Authentication("nope").StatusCode())
	assert.Equal(t, http.StatusNotFound, NotFound("Log", "abc").StatusCode())
	assert.Equal(t, http.StatusTooManyRequests, RateLimit(30).StatusCode())
	assert.Equal(t, http.StatusInternalServerError, Database(errors.New("boom")).StatusCode())
}

func TestAs(t *testing.T) {
	wrapped := errors.New("connection refused")
	err := fmt.Errorf("query failed: %w", Database(wrapped))

	found, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, KindDatabase, found.Kind)
}
