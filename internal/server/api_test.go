package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxrules/internal/processor"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

type fakePreviewer struct {
	results []rules.MatchResult
	err     error
	gotMax  int
	gotUser store.User
}

func (f *fakePreviewer) Preview(_ context.Context, user store.User, max int) ([]rules.MatchResult, error) {
	f.gotMax = max
	f.gotUser = user
	return f.results, f.err
}

type fakeJobs struct {
	jobs     map[string]processor.Job
	startErr error
	gotMax   int
	canceled []string
}

func (f *fakeJobs) Start(user store.User, max int) (processor.Job, error) {
	if f.startErr != nil {
		return processor.Job{}, f.startErr
	}
	f.gotMax = max
	j := processor.Job{ID: "job-" + user.ID, UserID: user.ID, MaxEmails: max, State: processor.JobRunning}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeJobs) Status(id string) (processor.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return processor.Job{}, processor.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobs) Cancel(id string) (processor.Job, error) {
	f.canceled = append(f.canceled, id)
	return f.Status(id)
}

type testEnv struct {
	store   *store.MemoryStore
	preview *fakePreviewer
	jobs    *fakeJobs
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   store.NewMemoryStore(),
		preview: &fakePreviewer{},
		jobs:    &fakeJobs{jobs: make(map[string]processor.Job)},
	}
	api := NewAPI(env.store, env.preview, env.jobs, Limits{MaxEmails: 100, PreviewEmails: 10}, nil, nil)
	env.handler = api.Router(NewHealthChecker(nil))
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func validDraft() map[string]any {
	return map[string]any{
		"name":         "Invoices",
		"match_type":   "subject",
		"match_value":  "invoice",
		"action_type":  "tag",
		"action_value": "Bills",
		"priority":     3,
		"is_active":    true,
	}
}

func TestAPI_RequiresUser(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/rules", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health endpoints need no user")
}

func TestAPI_RuleCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/rules", "alice", validDraft())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[rules.Rule](t, rec)
	assert.Equal(t, "alice", created.Owner)
	assert.NotZero(t, created.ID)

	path := "/api/rules/" + strconv.FormatInt(created.ID, 10)

	rec = env.do(t, http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Invoices", decode[rules.Rule](t, rec).Name)

	t.Run("other users see 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, "bob", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, "bob", nil).Code)
	})

	t.Run("partial update", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, "alice", map[string]any{"priority": 1})
		require.Equal(t, http.StatusOK, rec.Code)
		updated := decode[rules.Rule](t, rec)
		assert.Equal(t, 1, updated.Priority)
		assert.Equal(t, "invoice", updated.MatchValue)
	})

	t.Run("update to invalid rule", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, "alice", map[string]any{"match_type": "regex", "match_value": "("})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.NotEmpty(t, body["errors"])
	})

	t.Run("list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/rules", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]rules.Rule](t, rec), 1)

		rec = env.do(t, http.MethodGet, "/api/rules", "bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]rules.Rule](t, rec))
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "alice", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, "alice", nil).Code)
	})
}

func TestAPI_CreateRuleActiveDefault(t *testing.T) {
	tests := []struct {
		name       string
		isActive   any
		wantActive bool
	}{
		{name: "omitted", wantActive: true},
		{name: "explicit true", isActive: true, wantActive: true},
		{name: "explicit false", isActive: false, wantActive: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			draft := validDraft()
			delete(draft, "is_active")
			if tt.isActive != nil {
				draft["is_active"] = tt.isActive
			}

			rec := env.do(t, http.MethodPost, "/api/rules", "alice", draft)
			require.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, tt.wantActive, decode[rules.Rule](t, rec).IsActive)

			active, err := env.store.ActiveRules(context.Background(), "alice")
			require.NoError(t, err)
			if tt.wantActive {
				assert.Len(t, active, 1)
			} else {
				assert.Empty(t, active)
			}
		})
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func TestAPI_CreateRuleValidation(t *testing.T) {
	env := newTestEnv(t)

	draft := validDraft()
	delete(draft, "name")
	draft["action_type"] = "delete"

	rec := env.do(t, http.MethodPost, "/api/rules", "alice", draft)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Errors []string `json:"errors"`
	}](t, rec)
	assert.Len(t, body.Errors, 2)

	rec = env.do(t, http.MethodPost, "/api/rules", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty body")
}

func TestAPI_ValidateRule(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/rules/validate", "alice", validDraft())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}](t, rec)
	assert.True(t, body.Valid)
	assert.Empty(t, body.Errors)

	draft := validDraft()
	draft["action_value"] = ""
	rec = env.do(t, http.MethodPost, "/api/rules/validate", "alice", draft)
	body = decode[struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}](t, rec)
	assert.False(t, body.Valid)
	assert.Equal(t, []string{"action_value is required for tag and move actions"}, body.Errors)

	list, err := env.store.ListRules(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, list, "validation never persists")
}

func TestAPI_Patterns(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/patterns", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Patterns map[string]rules.CategoryPattern `json:"patterns"`
	}](t, rec)
	assert.Contains(t, body.Patterns, "bills")
}

func TestAPI_Preview(t *testing.T) {
	env := newTestEnv(t)
	rule := rules.Rule{ID: 4, Name: "Invoices"}
	env.preview.results = []rules.MatchResult{
		{Email: rules.Email{ID: "m1"}, Rule: &rule},
		{Email: rules.Email{ID: "m2"}},
	}

	tests := []struct {
		name    string
		query   string
		wantMax int
		code    int
	}{
		{name: "default", query: "", wantMax: 10, code: http.StatusOK},
		{name: "explicit", query: "?max_results=25", wantMax: 25, code: http.StatusOK},
		{name: "capped", query: "?max_results=5000", wantMax: 100, code: http.StatusOK},
		{name: "invalid", query: "?max_results=lots", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/emails/preview"+tt.query, "alice", nil)
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantMax, env.preview.gotMax)
			body := decode[struct {
				Emails []previewEntry `json:"emails"`
			}](t, rec)
			require.Len(t, body.Emails, 2)
			require.NotNil(t, body.Emails[0].Rule)
			assert.Equal(t, int64(4), body.Emails[0].Rule.ID)
			assert.Nil(t, body.Emails[1].Rule)
		})
	}

	t.Run("fetch failure", func(t *testing.T) {
		env.preview.err = errors.New("gmail down")
		rec := env.do(t, http.MethodGet, "/api/emails/preview", "alice", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestAPI_Process(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/process", "alice", map[string]int{"max_emails": 20})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 20, env.jobs.gotMax)
	body := decode[struct {
		Job processor.Job `json:"job"`
	}](t, rec)
	assert.Equal(t, "job-alice", body.Job.ID)

	t.Run("default max without body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/process", "carol", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, 100, env.jobs.gotMax)
	})

	t.Run("status", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/process/job-alice", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, processor.JobRunning, decode[processor.Job](t, rec).State)
	})

	t.Run("jobs of other users are hidden", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/process/job-alice", "bob", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/process/job-alice", "bob", nil).Code)
		assert.Empty(t, env.jobs.canceled)
	})

	t.Run("cancel", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/process/job-alice", "alice", nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"job-alice"}, env.jobs.canceled)
	})

	t.Run("unknown job", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/process/nope", "alice", nil).Code)
	})

	t.Run("already running", func(t *testing.T) {
		env.jobs.startErr = processor.ErrJobRunning
		defer func() { env.jobs.startErr = nil }()
		assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/process", "alice", nil).Code)
	})

	t.Run("negative max", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/process", "alice", map[string]int{"max_emails": -1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_StatsAndActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var draft rules.Rule
	require.NoError(t, json.Unmarshal(mustJSON(validDraft()), &draft))
	rule, err := env.store.CreateRule(ctx, "alice", draft)
	require.NoError(t, err)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, env.store.AppendLog(ctx, store.LogEntry{
			UserID: "alice", EmailID: id, RuleID: &rule.ID,
			AppliedAction: rules.ActionTag, ActionValue: rules.LabelBills, Success: true,
			ProcessedAt: time.Now().UTC(),
		}))
	}

	rec := env.do(t, http.MethodGet, "/api/stats", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[store.Stats](t, rec)
	assert.Equal(t, 1, st.TotalRules)
	assert.Equal(t, 3, st.ProcessedToday)
	assert.Equal(t, 3, st.BillsTracked)
	assert.Len(t, st.RecentActivity, 3)

	rec = env.do(t, http.MethodGet, "/api/activity?limit=2&offset=1", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.LogEntry](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/activity?limit=-1", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/activity", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]store.LogEntry](t, rec))
}
