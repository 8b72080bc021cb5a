package apierr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

func TestWriteDomainError_DuplicateMapsToConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/usercode", nil)

	WriteDomainError(rec, req, &contracts.Duplicate{ExistingID: "abc"})

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, http.StatusConflict, problem.Status)
	require.Equal(t, "Duplicate Submission", problem.Title)
	require.Equal(t, "/usercode", problem.Instance)
}

func TestWriteDomainError_UnknownErrorMapsToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/1", nil)

	WriteDomainError(rec, req, errPlain("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotContains(t, problem.Detail, "boom")
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
