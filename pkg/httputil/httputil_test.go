package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmguard/scmguard/pkg/authz"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]int{"id": 7}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 7, body["id"])
}

func TestWriteAuthzErrorForbidden(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAuthzError(rec, &authz.ForbiddenError{Action: authz.ActionWrite, Resources: []authz.Resource{authz.ResourceRepositories}})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Repositories")
}

func TestWriteAuthzErrorInvalidRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAuthzError(rec, authz.ErrInvalidRequest)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteAuthzErrorUpstream(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAuthzError(rec, &authz.UpstreamError{Op: "fetch policy rows", Err: errors.New("connection refused")})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteAuthzErrorLocalFault(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAuthzError(rec, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq")
}

func TestParseQueryEntityIDs(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/repos?ids=3,1,%202", nil)
	ids, err := ParseQueryEntityIDs(r, "ids")
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{3, 1, 2}, ids)
}

func TestParseQueryEntityIDsAbsentIsNil(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/repos", nil)
	ids, err := ParseQueryEntityIDs(r, "ids")
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestParseQueryEntityIDsInvalid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/repos?ids=1,abc", nil)
	_, err := ParseQueryEntityIDs(r, "ids")
	assert.Error(t, err)
}
