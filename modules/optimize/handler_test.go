package optimize

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-optimizer-server/modules/common/model"
)

func newTestRouter(t *testing.T) (*mux.Router, *testEnv) {
	t.Helper()
	env := newTestEnv(t, 100, 2)
	router := mux.NewRouter()
	NewHandler(env.service).RegisterRoutes(router)
	return router, env
}

func TestHandlerSubmitJob(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(SubmitRequest{URL: "https://example.com/listings/1"})
	req := httptest.NewRequest("POST", "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.JobID)
}

func TestHandlerSubmitJobInvalidURL(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(SubmitRequest{URL: "nope"})
	req := httptest.NewRequest("POST", "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestHandlerSubmitJobMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetJob(t *testing.T) {
	router, env := newTestRouter(t)

	jobID, _, err := env.service.SubmitJob(context.Background(), "https://example.com/listings/1")
	require.NoError(t, err)
	waitTerminal(t, env.service, jobID)

	req := httptest.NewRequest("GET", "/api/jobs/"+jobID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot JobProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, jobID, snapshot.JobID)
	assert.Equal(t, model.JobCompleted, snapshot.Status)
	assert.Len(t, snapshot.ImagePairs, 3)
}

func TestHandlerGetJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// 종료된 Job 취소 시도는 409, 상태는 그대로
func TestHandlerCancelFinishedJob(t *testing.T) {
	router, env := newTestRouter(t)

	jobID, _, err := env.service.SubmitJob(context.Background(), "https://example.com/listings/1")
	require.NoError(t, err)
	waitTerminal(t, env.service, jobID)

	req := httptest.NewRequest("POST", "/api/jobs/"+jobID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(model.JobCompleted), resp.JobStatus)
	assert.Equal(t, 3, resp.CompletedImages)
	assert.Equal(t, 3, resp.TotalImages)
}

func TestHandlerCancelUnknownJob(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/jobs/missing/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
