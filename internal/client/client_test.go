package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

func TestClientSendsTokenAndDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/media", r.URL.Path)
		assert.Equal(t, "video", r.URL.Query().Get("mediaType"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "true", r.URL.Query().Get("showFavorites"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []map[string]any{{"id": "media_1", "url": "https://x/y"}},
		})
	}))
	defer srv.Close()

	items, err := New(srv.URL+"/", "tok", nil).List(context.Background(), model.ListFilter{
		MediaType:     model.KindVideo,
		Limit:         10,
		ShowFavorites: true,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "media_1", items[0].ID)
	assert.Equal(t, "https://x/y", items[0].URL)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/media/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"media not found","code":"NOT_FOUND"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "tok", srv.Client())

	_, err := c.Get(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "media not found", apiErr.Message)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = c.Delete(context.Background(), "other")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "BAD_RESPONSE", apiErr.Code)
	assert.Nil(t, apiErr.Unwrap())
}
