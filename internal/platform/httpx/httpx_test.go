package httpx_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrDuplicate, http.StatusConflict},
		{shared.FieldErrors{"title": "required"}, http.StatusBadRequest},
		{shared.ErrAccessDenied, http.StatusForbidden},
		{shared.ErrSessionExpired, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", shared.ErrUnauthenticated), http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, httpx.StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.RespondError(rec, fmt.Errorf("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/articles/1", nil)
	assert.False(t, httpx.WantsJSON(req))
	req.Header.Set("Accept", "application/json")
	assert.True(t, httpx.WantsJSON(req))
}
