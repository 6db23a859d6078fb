package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/oceanco2/intake/api/handlers"
	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/factstore"
	"github.com/oceanco2/intake/intake/pkg/metadata"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
	intaketesting "github.com/oceanco2/intake/utils/pkg/testing"
)

const testExpocode = "33RO20050301"

var testNow = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

type fakeHistory struct {
	mu       sync.Mutex
	results  []*pipeline.Result
	writeErr error
}

func (h *fakeHistory) WriteResult(ctx context.Context, res *pipeline.Result, eventTS time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	h.results = append(h.results, res)
	return nil
}

func (h *fakeHistory) Flags(ctx context.Context, expocode, runID string) ([]factstore.FlagFact, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, res := range h.results {
		if res.Expocode.Code == expocode && res.RunID == runID {
			return factstore.FlagFacts(res, testNow, testNow), nil
		}
	}
	return nil, nil
}

func (h *fakeHistory) Crossovers(ctx context.Context, expocode string, limit int) ([]factstore.CrossoverFact, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []factstore.CrossoverFact
	for _, res := range h.results {
		for _, f := range factstore.CrossoverFacts(res.RunID, res.Overlaps, testNow, testNow) {
			if f.DatasetA == expocode || f.DatasetB == expocode {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

type env struct {
	api      *handlers.API
	h        http.Handler
	store    *statusstore.Memory
	pipeline *pipeline.Pipeline
	history  *fakeHistory
}

func newEnv(t *testing.T, withHistory bool) *env {
	t.Helper()
	log := intaketesting.NewLogger()
	clock := clockwork.NewFakeClockAt(testNow)
	engine, err := qcstatus.NewEngine(qcstatus.EngineConfig{Logger: log, Clock: clock})
	require.NoError(t, err)
	p, err := pipeline.New(pipeline.Config{
		Logger:  log,
		Clock:   clock,
		Catalog: catalog.Default(),
		Engine:  engine,
	})
	require.NoError(t, err)

	e := &env{
		store:    statusstore.NewMemory(clock),
		pipeline: p,
	}
	cfg := handlers.Config{
		Logger:      log,
		Clock:       clock,
		Pipeline:    p,
		Engine:      engine,
		Store:       e.store,
		Limiter:     handlers.NewRateLimiter(rate.Inf, 1),
		VersionInfo: handlers.VersionInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-15"},
	}
	if withHistory {
		e.history = &fakeHistory{}
		cfg.History = e.history
	}
	e.api, err = handlers.New(cfg)
	require.NoError(t, err)
	t.Cleanup(e.api.Close)
	e.h = e.api.Handler()
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func testColumns() []string {
	return []string{"year", "month", "day", "hour", "minute", "longitude", "latitude", "temp"}
}

func testRows() [][]string {
	return [][]string{
		{"2005", "3", "1", "12", "0", "-40.0", "20.0", "25.0"},
		{"2005", "3", "2", "12", "0", "-39.0", "20.0", "25.1"},
		{"2005", "3", "3", "12", "0", "-38.0", "20.0", "25.2"},
	}
}

func testMetadata(code string, overrides map[string]string) map[string]string {
	values := map[string]string{
		metadata.FieldExpocode:      code,
		metadata.FieldDatasetName:   "RB0502",
		metadata.FieldPlatformName:  "Ronald H. Brown",
		metadata.FieldPlatformType:  "ship",
		metadata.FieldInvestigators: "Wanninkhof, R.",
		metadata.FieldOrganizations: "NOAA/AOML",
		metadata.FieldStartDate:     "2005-03-01",
		metadata.FieldEndDate:       "2005-03-03",
		metadata.FieldWestLon:       "-40.0",
		metadata.FieldEastLon:       "-38.0",
		metadata.FieldSouthLat:      "20.0",
		metadata.FieldNorthLat:      "20.0",
	}
	for k, v := range overrides {
		values[k] = v
	}
	return values
}

func cleanUpload(code string) handlers.ValidateRequest {
	return handlers.ValidateRequest{
		Columns:  testColumns(),
		Rows:     testRows(),
		Metadata: []map[string]string{testMetadata(code, nil)},
	}
}

func (e *env) validate(t *testing.T, code string, req handlers.ValidateRequest) handlers.ValidateResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/datasets/"+code+"/validate", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[handlers.ValidateResponse](t, rec)
}

func TestIntake_API_Config(t *testing.T) {
	t.Parallel()

	_, err := handlers.New(handlers.Config{})
	require.Error(t, err)
	_, err = handlers.New(handlers.Config{Logger: intaketesting.NewLogger()})
	require.Error(t, err)
}

func TestIntake_API_Health(t *testing.T) {
	t.Parallel()

	t.Run("healthz version and metrics", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodGet, "/healthz", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "ok\n", rec.Body.String())

		rec = e.do(t, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodGet, "/version", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1.2.3", decode[handlers.VersionInfo](t, rec).Version)

		rec = e.do(t, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "oceanco2_intake_api_build_info")
	})

	t.Run("readyz reports not ready", func(t *testing.T) {
		t.Parallel()

		log := intaketesting.NewLogger()
		engine, err := qcstatus.NewEngine(qcstatus.EngineConfig{Logger: log})
		require.NoError(t, err)
		p, err := pipeline.New(pipeline.Config{Logger: log, Catalog: catalog.Default(), Engine: engine})
		require.NoError(t, err)
		api, err := handlers.New(handlers.Config{
			Logger:   log,
			Pipeline: p,
			Engine:   engine,
			Store:    statusstore.NewMemory(nil),
			Ready:    func() bool { return false },
		})
		require.NoError(t, err)
		t.Cleanup(api.Close)

		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestIntake_API_ValidateDataset(t *testing.T) {
	t.Parallel()

	t.Run("clean dataset is evaluated and recorded", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, true)
		resp := e.validate(t, "33ro20050301", cleanUpload(testExpocode))

		require.NotEmpty(t, resp.RunID)
		require.Equal(t, testExpocode, resp.Expocode)
		require.Equal(t, 3, resp.Records)
		require.Empty(t, resp.Errors)
		require.Empty(t, resp.Flags)
		require.Equal(t, "[ ]", resp.FlagText)
		require.Empty(t, resp.Overlaps)
		require.Equal(t, crossover.SeverityNone, resp.Crossovers)
		require.True(t, resp.Metadata.Acceptable)
		require.Empty(t, resp.Metadata.Conflicts)
		require.Equal(t, qcstatus.CheckPassed, resp.Check.Outcome)
		require.Equal(t, qcstatus.Standing{State: qcstatus.StateAccepted, Grade: qcstatus.GradeA}, resp.Status.Suggested)
		require.Equal(t, qcstatus.StateEditable, resp.Status.Actual.State)
		require.True(t, resp.Recorded)
		require.Len(t, e.history.results, 1)

		rec := e.do(t, http.MethodGet, "/v1/datasets/"+testExpocode+"/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		st := decode[handlers.StatusResponse](t, rec)
		require.Equal(t, "-", st.Flag)
		require.Empty(t, st.Blockers)
		require.Contains(t, st.NextActions, "submit")
		require.Equal(t, resp.Check.ID, st.LastCheck.ID)

		rec = e.do(t, http.MethodGet, "/v1/datasets/"+testExpocode+"/checks", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		checks := decode[handlers.PaginatedResponse[qcstatus.CheckResult]](t, rec)
		require.Equal(t, 1, checks.Total)
		require.Equal(t, resp.Check.ID, checks.Items[0].ID)
	})

	t.Run("bad cells are reported and flagged", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, true)
		req := cleanUpload(testExpocode)
		req.Rows[1][7] = "abc"
		resp := e.validate(t, testExpocode, req)

		require.Equal(t, 3, resp.Records)
		require.Len(t, resp.Errors, 1)
		require.Equal(t, "parse_failure", resp.Errors[0].Kind)
		require.NotNil(t, resp.Errors[0].Row)
		require.Equal(t, 1, *resp.Errors[0].Row)
		require.Equal(t, `[ [1, 7, "BAD", "4", "parse"] ]`, resp.FlagText)
		require.Equal(t, qcstatus.CheckPassedWithWarnings, resp.Check.Outcome)

		rec := e.do(t, http.MethodGet, "/v1/datasets/"+testExpocode+"/runs/"+resp.RunID+"/flags", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, resp.FlagText, decode[handlers.FlagsResponse](t, rec).Text)
	})

	t.Run("metadata problems do not fail the run", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		req := cleanUpload(testExpocode)
		req.Metadata = append(req.Metadata, testMetadata(testExpocode, map[string]string{
			metadata.FieldPlatformName: "Oceanus",
		}))
		resp := e.validate(t, testExpocode, req)

		require.False(t, resp.Metadata.Acceptable)
		require.Equal(t, []string{metadata.FieldPlatformName}, resp.Metadata.Conflicts)
		require.Equal(t, metadata.ConflictMarker, resp.Metadata.Fields[metadata.FieldPlatformName])
		require.Equal(t, qcstatus.StateEditable, resp.Status.Suggested.State)
		require.False(t, resp.Recorded)
	})

	t.Run("registered datasets take part in later scans", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, true)
		req := cleanUpload("33AT20050228")
		req.Register = true
		e.validate(t, "33AT20050228", req)

		rec := e.do(t, http.MethodGet, "/v1/expocodes/33at20050228", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		info := decode[handlers.ExpocodeResponse](t, rec)
		require.True(t, info.Known)
		require.True(t, info.Registered)

		resp := e.validate(t, testExpocode, cleanUpload(testExpocode))
		require.Len(t, resp.Overlaps, 1)
		require.Equal(t, 3, resp.Overlaps[0].Len())
		require.Equal(t, crossover.SeverityFew, resp.Crossovers)
		require.Equal(t, qcstatus.Standing{State: qcstatus.StateAccepted, Grade: qcstatus.GradeB}, resp.Status.Suggested)

		rec = e.do(t, http.MethodGet, "/v1/datasets/33AT20050228/crossovers", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, decode[[]factstore.CrossoverFact](t, rec), 3)
	})

	t.Run("history failure keeps the status change", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, true)
		e.history.writeErr = errors.New("clickhouse unavailable")
		resp := e.validate(t, testExpocode, cleanUpload(testExpocode))
		require.False(t, resp.Recorded)

		st, err := e.store.Get(t.Context(), testExpocode)
		require.NoError(t, err)
		require.Equal(t, resp.Check.ID, st.LastCheck.ID)
	})

	t.Run("request errors", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)

		rec := e.do(t, http.MethodPost, "/v1/datasets/bogus/validate", cleanUpload(testExpocode))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_identifier", decode[handlers.ErrorResponse](t, rec).Error)

		req := cleanUpload(testExpocode)
		req.Columns = []string{"temp:NOTAKIND"}
		rec = e.do(t, http.MethodPost, "/v1/datasets/"+testExpocode+"/validate", req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Equal(t, "invalid_column_header", decode[handlers.ErrorResponse](t, rec).Error)

		rec = e.do(t, http.MethodPost, "/v1/datasets/"+testExpocode+"/validate", `{"columns": ["temp"], "bogus": 1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_body", decode[handlers.ErrorResponse](t, rec).Error)

		rec = e.do(t, http.MethodPost, "/v1/datasets/"+testExpocode+"/validate", `{"rows": []}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = e.do(t, http.MethodGet, "/v1/datasets/"+testExpocode+"/runs/x/flags", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "history_disabled", decode[handlers.ErrorResponse](t, rec).Error)

		_, err := e.store.Get(t.Context(), testExpocode)
		require.ErrorIs(t, err, statusstore.ErrNotFound)
	})
}

func TestIntake_API_StatusActions(t *testing.T) {
	t.Parallel()

	action := func(t *testing.T, e *env, name string, body any) *httptest.ResponseRecorder {
		t.Helper()
		return e.do(t, http.MethodPost, "/v1/datasets/"+testExpocode+"/status/"+name, body)
	}

	t.Run("submit accept plan and archive", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		e.validate(t, testExpocode, cleanUpload(testExpocode))

		rec := action(t, e, "submit", handlers.ActionRequest{Actor: "pi"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, qcstatus.StateAwaitingInitialQC, decode[handlers.StatusResponse](t, rec).Actual.State)

		rec = action(t, e, "accept", handlers.ActionRequest{Actor: "manager", Grade: "F"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_grade", decode[handlers.ErrorResponse](t, rec).Error)

		rec = action(t, e, "accept", handlers.ActionRequest{Actor: "manager", Grade: "b"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		st := decode[handlers.StatusResponse](t, rec)
		require.Equal(t, qcstatus.Standing{State: qcstatus.StateAccepted, Grade: qcstatus.GradeB}, st.Actual)
		require.Equal(t, "B", st.Flag)

		rec = action(t, e, "archive", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "invalid_transition", decode[handlers.ErrorResponse](t, rec).Error)

		rec = action(t, e, "archive-plan", handlers.ActionRequest{Actor: "manager", Plan: "nowhere"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = action(t, e, "archive-plan", handlers.ActionRequest{Actor: "manager", Plan: "with-next-release"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Contains(t, decode[handlers.StatusResponse](t, rec).NextActions, "archive")

		rec = action(t, e, "archive", handlers.ActionRequest{Actor: "manager"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		st = decode[handlers.StatusResponse](t, rec)
		require.Equal(t, qcstatus.StateArchived, st.Actual.State)
		require.Equal(t, "R", st.Flag)

		rec = action(t, e, "edit", handlers.ActionRequest{Actor: "pi", Reason: "corrected salinity"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, qcstatus.StateAwaitingRequalification, decode[handlers.StatusResponse](t, rec).Actual.State)
	})

	t.Run("re-upload after acceptance requires requalification", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		e.validate(t, testExpocode, cleanUpload(testExpocode))
		require.Equal(t, http.StatusOK, action(t, e, "submit", handlers.ActionRequest{Actor: "pi"}).Code)
		require.Equal(t, http.StatusOK, action(t, e, "accept", handlers.ActionRequest{Actor: "manager", Grade: "B"}).Code)

		req := cleanUpload(testExpocode)
		req.Rows[1][7] = "25.3"
		req.Actor = "pi"
		resp := e.validate(t, testExpocode, req)
		require.Equal(t, qcstatus.StateAwaitingRequalification, resp.Status.Actual.State)
		// validate, submit and accept each left one comment before the edit.
		require.Len(t, resp.Status.Comments, 4)
		last := resp.Status.Comments[3]
		require.Equal(t, "pi", last.Actor)
		require.Contains(t, last.Text, "data re-uploaded")
		require.Contains(t, last.Text, "requalification required")

		rec := e.do(t, http.MethodGet, "/v1/datasets/"+testExpocode+"/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		st := decode[handlers.StatusResponse](t, rec)
		require.Equal(t, qcstatus.StateAwaitingRequalification, st.Actual.State)
		require.ElementsMatch(t, []string{"accept", "suspend"}, st.NextActions)

		rec = action(t, e, "accept", handlers.ActionRequest{Actor: "manager", Grade: "A"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "A", decode[handlers.StatusResponse](t, rec).Flag)
	})

	t.Run("re-upload before acceptance keeps the state", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		e.validate(t, testExpocode, cleanUpload(testExpocode))
		require.Equal(t, http.StatusOK, action(t, e, "submit", nil).Code)

		resp := e.validate(t, testExpocode, cleanUpload(testExpocode))
		require.Equal(t, qcstatus.StateAwaitingInitialQC, resp.Status.Actual.State)
		require.Len(t, resp.Status.Comments, 2)
	})

	t.Run("failed check blocks submission", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		req := cleanUpload(testExpocode)
		req.Check = &qcstatus.CheckResult{ID: "ext-1", Outcome: qcstatus.CheckFailed, Rows: 3}
		resp := e.validate(t, testExpocode, req)
		require.True(t, testNow.Equal(resp.Check.At))

		rec := action(t, e, "submit", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		errResp := decode[handlers.ErrorResponse](t, rec)
		require.Equal(t, "not_submittable", errResp.Error)
		require.Contains(t, errResp.Reasons, "data check failed")
	})

	t.Run("unknown dataset and action", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := action(t, e, "submit", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "not_found", decode[handlers.ErrorResponse](t, rec).Error)

		rec = e.do(t, http.MethodGet, "/v1/datasets/"+testExpocode+"/status", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		rec = action(t, e, "explode", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "unknown_action", decode[handlers.ErrorResponse](t, rec).Error)
	})
}

func TestIntake_API_ListDatasets(t *testing.T) {
	t.Parallel()

	e := newEnv(t, false)
	e.validate(t, testExpocode, cleanUpload(testExpocode))
	e.validate(t, "49NZ20050310", cleanUpload("49NZ20050310"))
	rec := e.do(t, http.MethodPost, "/v1/datasets/49NZ20050310/status/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/v1/datasets?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[handlers.PaginatedResponse[qcstatus.Status]](t, rec)
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, testExpocode, page.Items[0].Expocode)

	rec = e.do(t, http.MethodGet, "/v1/datasets?offset=1", nil)
	page = decode[handlers.PaginatedResponse[qcstatus.Status]](t, rec)
	require.Len(t, page.Items, 1)
	require.Equal(t, "49NZ20050310", page.Items[0].Expocode)

	rec = e.do(t, http.MethodGet, "/v1/datasets?state=awaiting-initial-qc", nil)
	page = decode[handlers.PaginatedResponse[qcstatus.Status]](t, rec)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "49NZ20050310", page.Items[0].Expocode)
}

func TestIntake_API_Flags(t *testing.T) {
	t.Parallel()

	t.Run("encode sorts and drops duplicates", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodPost, "/v1/flags/encode", `{"flags": [
			{"row": 3, "column": 1, "severity": "BAD", "value": "4", "name": "range"},
			{"row": 0, "column": 2, "severity": "QUESTIONABLE", "value": "3", "name": "parse"},
			{"row": 3, "column": 1, "severity": "BAD", "value": "4", "name": "range"}
		]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[handlers.FlagsResponse](t, rec)
		require.Len(t, resp.Flags, 2)
		require.Equal(t, `[ [0, 2, "QUESTIONABLE", "3", "parse"], [3, 1, "BAD", "4", "range"] ]`, resp.Text)
	})

	t.Run("encode rejects unrepresentable entries", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodPost, "/v1/flags/encode", `{"flags": [{"row": -1, "column": 0, "severity": "BAD", "value": "4", "name": "x"}]}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Equal(t, "malformed_flag_entry", decode[handlers.ErrorResponse](t, rec).Error)
	})

	t.Run("decode", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodPost, "/v1/flags/decode", handlers.DecodeFlagsRequest{Text: `[ [1, 7, "BAD", "4", "parse"] ]`})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[handlers.FlagsResponse](t, rec)
		require.Len(t, resp.Flags, 1)
		require.Equal(t, 7, resp.Flags[0].Column)

		rec = e.do(t, http.MethodPost, "/v1/flags/decode", handlers.DecodeFlagsRequest{Text: "[ ]"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, decode[handlers.FlagsResponse](t, rec).Flags)

		rec = e.do(t, http.MethodPost, "/v1/flags/decode", handlers.DecodeFlagsRequest{Text: "not flags"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestIntake_API_MergeMetadata(t *testing.T) {
	t.Parallel()

	t.Run("conflicts are reported", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodPost, "/v1/metadata/merge", handlers.MergeMetadataRequest{
			Documents: []map[string]string{
				testMetadata(testExpocode, nil),
				testMetadata(testExpocode, map[string]string{metadata.FieldPlatformName: "Oceanus"}),
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[handlers.MergeMetadataResponse](t, rec)
		require.False(t, resp.Acceptable)
		require.Equal(t, []handlers.FieldConflict{{
			Name:        metadata.FieldPlatformName,
			Primary:     "Ronald H. Brown",
			Secondary:   "Oceanus",
			Replacement: metadata.ConflictMarker,
		}}, resp.Conflicts)
	})

	t.Run("blank values take the other side", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodPost, "/v1/metadata/merge", handlers.MergeMetadataRequest{
			Documents: []map[string]string{
				testMetadata(testExpocode, map[string]string{metadata.FieldInvestigators: " "}),
				testMetadata(testExpocode, nil),
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[handlers.MergeMetadataResponse](t, rec)
		require.True(t, resp.Acceptable)
		require.Empty(t, resp.Conflicts)
		require.Equal(t, "Wanninkhof, R.", resp.Fields[metadata.FieldInvestigators])
	})

	t.Run("identifier mismatch", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, false)
		rec := e.do(t, http.MethodPost, "/v1/metadata/merge", handlers.MergeMetadataRequest{
			Documents: []map[string]string{
				testMetadata(testExpocode, nil),
				testMetadata("49NZ20050310", nil),
			},
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Equal(t, "identifier_mismatch", decode[handlers.ErrorResponse](t, rec).Error)

		rec = e.do(t, http.MethodPost, "/v1/metadata/merge", handlers.MergeMetadataRequest{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIntake_API_Crossovers(t *testing.T) {
	t.Parallel()

	e := newEnv(t, false)
	ts := float64(time.Date(2005, 3, 1, 12, 0, 0, 0, time.UTC).Unix())
	rec := e.do(t, http.MethodPost, "/v1/crossovers", handlers.DetectCrossoversRequest{
		Datasets: map[string][]crossover.Sample{
			"A": {{Row: 0, Lon: -40, Lat: 20, Time: ts}, {Row: 1, Lon: 100, Lat: -30, Time: ts}},
			"B": {{Row: 5, Lon: -40, Lat: 20, Time: ts}},
			"C": {{Row: 0, Lon: 10, Lat: 10, Time: ts}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[handlers.DetectCrossoversResponse](t, rec)

	require.Len(t, resp.Overlaps, 1)
	require.Equal(t, [2]string{"A", "B"}, resp.Overlaps[0].Datasets)
	require.Equal(t, [2][]int{{0}, {5}}, resp.Overlaps[0].Rows)
	require.Equal(t, crossover.SeverityFew, resp.Severity["A"])
	require.Equal(t, crossover.SeverityFew, resp.Severity["B"])
	require.Equal(t, crossover.SeverityNone, resp.Severity["C"])
	require.Equal(t, 1, resp.Pairs["A"])

	rec = e.do(t, http.MethodPost, "/v1/crossovers", handlers.DetectCrossoversRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntake_API_Expocode(t *testing.T) {
	t.Parallel()

	e := newEnv(t, false)
	rec := e.do(t, http.MethodGet, "/v1/expocodes/33ro20050301", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[handlers.ExpocodeResponse](t, rec)
	require.Equal(t, testExpocode, info.Code)
	require.Equal(t, "33RO", info.ShipCode)
	require.Equal(t, "2005-03-01", info.Date)
	require.False(t, info.Known)
	require.False(t, info.Registered)

	rec = e.do(t, http.MethodGet, "/v1/expocodes/33RO2005", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_identifier", decode[handlers.ErrorResponse](t, rec).Error)
}
