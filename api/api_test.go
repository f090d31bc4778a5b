package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/pipeline"
)

func get(t *testing.T, h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTracker_FollowsRun(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, "idle", tr.Snapshot().State)

	at := time.Unix(1700000000, 0)
	tr.Observe(pipeline.Event{Kind: pipeline.EventStateChanged, RunID: "r1", Query: "pizza near me", State: pipeline.StateSearching, At: at})
	tr.Observe(pipeline.Event{Kind: pipeline.EventChallengeDetected, RunID: "r1", State: pipeline.StateSearching, At: at.Add(time.Second)})

	s := tr.Snapshot()
	assert.Equal(t, "r1", s.RunID)
	assert.Equal(t, "searching", s.State)
	assert.True(t, s.ChallengeOpen)
	assert.Equal(t, int64(1700000000), s.StartedAt)

	tr.Observe(pipeline.Event{Kind: pipeline.EventChallengeCleared, RunID: "r1", Query: "pizza near me", State: pipeline.StateSearching})
	tr.Observe(pipeline.Event{Kind: pipeline.EventPagePersisted, RunID: "r1", Query: "pizza near me", State: pipeline.StatePersisting,
		Stats: models.RunStats{Pages: 1, Records: 4}})

	s = tr.Snapshot()
	assert.False(t, s.ChallengeOpen)
	assert.Equal(t, models.RunStats{Pages: 1, Records: 4}, s.Stats)
	assert.Nil(t, s.Error)
}

func TestTracker_RecordsFailure(t *testing.T) {
	tr := NewTracker()

	tr.Observe(pipeline.Event{
		Kind:  pipeline.EventStateChanged,
		RunID: "r1",
		State: pipeline.StateFailed,
		Err:   errors.New("browser went away"),
	})

	s := tr.Snapshot()
	assert.Equal(t, "failed", s.State)
	require.NotNil(t, s.Error)
	assert.Equal(t, models.ErrCodeSurface, s.Error.Code)
}

func TestRouter_Health(t *testing.T) {
	tr := NewTracker()
	r := NewRouter(tr, config.StatusConfig{Mode: "test"}, time.Now())

	w := get(t, r, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)

	tr.Observe(pipeline.Event{Kind: pipeline.EventChallengeDetected, RunID: "r1"})
	w = get(t, r, "/api/v1/health", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "waiting", health.Status)
}

func TestRouter_RunOpenWithoutKeys(t *testing.T) {
	tr := NewTracker()
	tr.Observe(pipeline.Event{Kind: pipeline.EventStateChanged, RunID: "r1", Query: "pizza near me", State: pipeline.StateExtracting})
	r := NewRouter(tr, config.StatusConfig{Mode: "test"}, time.Now())

	w := get(t, r, "/api/v1/run", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var status models.RunStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "r1", status.RunID)
	assert.Equal(t, "extracting", status.State)
	assert.Equal(t, "pizza near me", status.Query)
}

func TestRouter_RunRequiresKey(t *testing.T) {
	r := NewRouter(NewTracker(), config.StatusConfig{Mode: "test", APIKeys: []string{"k1"}}, time.Now())

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header", map[string]string{"X-API-Key": "k1"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer k1"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, r, "/api/v1/run", tt.headers)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				var resp models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, models.ErrCodeUnauthorized, resp.Error.Code)
			}
		})
	}

	assert.Equal(t, http.StatusOK, get(t, r, "/api/v1/health", nil).Code)
}
