package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFollowsWrappedErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("save: %w", ErrInvalidInput), http.StatusBadRequest, "INVALID_REQUEST"},
		{fmt.Errorf("stat: %w", ErrNotUploaded), http.StatusBadRequest, "NOT_UPLOADED"},
		{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("delete: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{ErrConflict, http.StatusConflict, "CONFLICT"},
		{ErrTooLarge, http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{ErrUnsupportedType, http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
		assert.Equal(t, tt.code, Code(tt.err), tt.err.Error())
	}
}
