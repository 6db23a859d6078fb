package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"github.com/oceanco2/intake/api/metrics"
	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/dserror"
	"github.com/oceanco2/intake/intake/pkg/factstore"
	"github.com/oceanco2/intake/intake/pkg/flags"
	"github.com/oceanco2/intake/intake/pkg/metadata"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
)

// ValidateRequest is an uploaded dataset.
type ValidateRequest struct {
	// Columns are "name" or "name:KIND" definitions, one per value in each row.
	Columns  []string            `json:"columns"`
	Rows     [][]string          `json:"rows"`
	Metadata []map[string]string `json:"metadata"`
	// Check is an external checker's verdict; one is derived from the rows when absent.
	Check *qcstatus.CheckResult `json:"check,omitempty"`
	// Register makes the dataset's samples visible to later crossover scans.
	Register bool `json:"register"`
	// Actor is recorded in the audit trail when the upload edits an accepted dataset.
	Actor string `json:"actor,omitempty"`
}

// RecordError is one problem found while building records.
type RecordError struct {
	Kind    string `json:"kind"`
	Row     *int   `json:"row,omitempty"`
	Column  string `json:"column,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message"`
}

// MetadataSummary describes the merged metadata of a run.
type MetadataSummary struct {
	Fields     map[string]string `json:"fields"`
	Conflicts  []string          `json:"conflicts"`
	Missing    []string          `json:"missing"`
	Acceptable bool              `json:"acceptable"`
	Error      string            `json:"error,omitempty"`
}

type ValidateResponse struct {
	RunID      string                `json:"run_id"`
	Expocode   string                `json:"expocode"`
	Records    int                   `json:"records"`
	Errors     []RecordError         `json:"errors"`
	Flags      []flags.Entry         `json:"flags"`
	FlagText   string                `json:"flag_text"`
	Metadata   MetadataSummary       `json:"metadata"`
	Overlaps   []*crossover.Overlap  `json:"overlaps"`
	Crossovers crossover.Severity    `json:"crossovers"`
	Check      *qcstatus.CheckResult `json:"check"`
	Status     *qcstatus.Status      `json:"status"`
	Recorded   bool                  `json:"recorded"`
}

// ValidateDataset runs an uploaded dataset through the pipeline and re-evaluates its status.
func (a *API) ValidateDataset(w http.ResponseWriter, r *http.Request) {
	code, ok := a.expocodeParam(w, r)
	if !ok {
		return
	}
	var req ValidateRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if len(req.Columns) == 0 {
		a.writeError(w, http.StatusBadRequest, "invalid_body", "columns are required")
		return
	}
	if req.Check != nil {
		if req.Check.ID == "" {
			a.writeError(w, http.StatusBadRequest, "invalid_body", "check id is required")
			return
		}
		if req.Check.At.IsZero() {
			req.Check.At = a.cfg.Clock.Now()
		}
	}
	metrics.UploadRows.Observe(float64(len(req.Rows)))

	docs := make([]*metadata.Document, 0, len(req.Metadata))
	for _, m := range req.Metadata {
		docs = append(docs, metadata.FromStrings(m))
	}

	ctx := r.Context()
	span := sentry.StartSpan(ctx, "intake.validate", sentry.WithDescription(code.Code))
	defer span.Finish()
	ctx = span.Context()

	res, err := a.cfg.Pipeline.Run(ctx, pipeline.Input{
		Expocode: code.Code,
		Columns:  req.Columns,
		Rows:     req.Rows,
		Metadata: docs,
		Check:    req.Check,
	}, nil)
	if err != nil {
		span.Status = sentry.SpanStatusInvalidArgument
		a.writeErr(w, r, err)
		return
	}

	st, err := a.cfg.Store.Upsert(ctx, code.Code, func(st *qcstatus.Status) error {
		switch st.Actual.State {
		case qcstatus.StateAccepted, qcstatus.StateArchived:
			if err := a.cfg.Engine.RecordEdit(st, req.Actor, "data re-uploaded"); err != nil {
				return err
			}
		}
		a.cfg.Engine.Evaluate(st, qcstatus.Evaluation{
			Check:              res.Check,
			MetadataAcceptable: res.MetadataAcceptable,
			Crossovers:         res.Crossovers,
		})
		return nil
	})
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		a.writeErr(w, r, err)
		return
	}

	if req.Register {
		a.cfg.Pipeline.Register(res)
	}

	recorded := false
	if a.cfg.History != nil {
		err := a.cfg.History.WriteResult(ctx, res, a.cfg.Clock.Now())
		metrics.RecordHistoryWrite(err)
		if err != nil {
			// The status change stands; only the run history is incomplete.
			a.log.Error("api: failed to record validation run", "expocode", code.Code, "run_id", res.RunID, "error", err)
			if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
				hub.CaptureException(err)
			}
		} else {
			recorded = true
		}
	}

	span.Status = sentry.SpanStatusOK
	a.writeJSON(w, http.StatusOK, newValidateResponse(res, st, recorded))
}

func newValidateResponse(res *pipeline.Result, st *qcstatus.Status, recorded bool) ValidateResponse {
	out := ValidateResponse{
		RunID:      res.RunID,
		Expocode:   res.Expocode.Code,
		Records:    len(res.Build.Records),
		Errors:     make([]RecordError, 0, len(res.Build.Errors)),
		Flags:      orEmpty(res.Flags.Entries()),
		FlagText:   res.FlagText,
		Overlaps:   orEmpty(res.Overlaps),
		Crossovers: res.Crossovers,
		Check:      res.Check,
		Status:     st,
		Recorded:   recorded,
	}
	for _, e := range res.Build.Errors {
		re := RecordError{
			Kind:    errorCode(e.Kind),
			Column:  e.Column,
			Text:    e.Text,
			Message: e.Msg,
		}
		if e.Row != dserror.NoRow {
			row := e.Row
			re.Row = &row
		}
		out.Errors = append(out.Errors, re)
	}

	out.Metadata = MetadataSummary{
		Fields:     map[string]string{},
		Conflicts:  []string{},
		Missing:    []string{},
		Acceptable: res.MetadataAcceptable,
	}
	if res.Metadata != nil {
		out.Metadata.Fields = res.Metadata.Strings()
		out.Metadata.Conflicts = orEmpty(res.Metadata.Conflicts())
		out.Metadata.Missing = orEmpty(res.Metadata.Missing())
	}
	if res.MetadataErr != nil {
		out.Metadata.Error = res.MetadataErr.Error()
	}
	return out
}

// StatusResponse is a dataset's status with the reasons it cannot be submitted yet.
type StatusResponse struct {
	*qcstatus.Status
	Flag        string   `json:"flag"`
	Blockers    []string `json:"blockers"`
	NextActions []string `json:"next_actions"`
}

func newStatusResponse(st *qcstatus.Status) StatusResponse {
	return StatusResponse{
		Status:      st,
		Flag:        string(st.Flag()),
		Blockers:    orEmpty(qcstatus.Submittable(st)),
		NextActions: nextActions(st),
	}
}

// nextActions lists the actions the state machine accepts from the dataset's current state.
func nextActions(st *qcstatus.Status) []string {
	var out []string
	switch st.Actual.State {
	case qcstatus.StateEditable:
		out = append(out, string(qcstatus.ActionSubmit))
	case qcstatus.StateAwaitingInitialQC, qcstatus.StateAwaitingRequalification:
		out = append(out, string(qcstatus.ActionAccept), string(qcstatus.ActionSuspend))
	case qcstatus.StateAccepted:
		out = append(out, string(qcstatus.ActionSuspend))
		if st.ArchivePlan != qcstatus.PlanUndecided {
			out = append(out, string(qcstatus.ActionArchive))
		}
	case qcstatus.StateSuspended:
		out = append(out, string(qcstatus.ActionAccept), string(qcstatus.ActionResubmit))
	}
	out = append(out, string(qcstatus.ActionEdit))
	if st.Actual.State != qcstatus.StateArchived {
		out = append(out, string(qcstatus.ActionSetArchivePlan))
	}
	slices.Sort(out)
	return out
}

// GetStatus returns a dataset's QC status.
func (a *API) GetStatus(w http.ResponseWriter, r *http.Request) {
	code, ok := a.expocodeParam(w, r)
	if !ok {
		return
	}
	st, err := a.cfg.Store.Get(r.Context(), code.Code)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, newStatusResponse(st))
}

// ActionRequest carries the arguments of a status action. The action itself is in the path.
type ActionRequest struct {
	Actor  string `json:"actor"`
	Grade  string `json:"grade,omitempty"`
	Plan   string `json:"plan,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ApplyAction performs an explicit status transition.
func (a *API) ApplyAction(w http.ResponseWriter, r *http.Request) {
	code, ok := a.expocodeParam(w, r)
	if !ok {
		return
	}
	action, err := qcstatus.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		a.writeError(w, http.StatusNotFound, "unknown_action", err.Error())
		return
	}
	var body ActionRequest
	if r.ContentLength != 0 && !a.decodeBody(w, r, &body) {
		return
	}

	req := qcstatus.Request{
		Action: action,
		Actor:  body.Actor,
		Reason: body.Reason,
	}
	if action == qcstatus.ActionAccept {
		if req.Grade, err = qcstatus.ParseGrade(body.Grade); err != nil {
			a.writeErr(w, r, err)
			return
		}
	}
	if action == qcstatus.ActionSetArchivePlan {
		if req.Plan, err = qcstatus.ParseArchivePlan(body.Plan); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid_plan", err.Error())
			return
		}
	}

	st, err := a.cfg.Store.Update(r.Context(), code.Code, func(st *qcstatus.Status) error {
		return a.cfg.Engine.Apply(st, req)
	})
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, newStatusResponse(st))
}

// ListDatasets returns a page of dataset statuses ordered by expocode.
func (a *API) ListDatasets(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.cfg.Store.List(r.Context())
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if state := r.URL.Query().Get("state"); state != "" {
		statuses = slices.DeleteFunc(statuses, func(st *qcstatus.Status) bool {
			return st.Actual.State.String() != state
		})
	}
	slices.SortFunc(statuses, func(x, y *qcstatus.Status) int {
		return strings.Compare(x.Expocode, y.Expocode)
	})
	a.writeJSON(w, http.StatusOK, Paginate(statuses, ParsePagination(r, DefaultLimit)))
}

// ListChecks returns a page of a dataset's check results, newest first.
func (a *API) ListChecks(w http.ResponseWriter, r *http.Request) {
	code, ok := a.expocodeParam(w, r)
	if !ok {
		return
	}
	if _, err := a.cfg.Store.Get(r.Context(), code.Code); err != nil {
		a.writeErr(w, r, err)
		return
	}
	checks, err := a.cfg.Store.Checks(r.Context(), code.Code, 0)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, Paginate(checks, ParsePagination(r, 20)))
}

// GetRunFlags returns the flags recorded for one validation run.
func (a *API) GetRunFlags(w http.ResponseWriter, r *http.Request) {
	code, ok := a.expocodeParam(w, r)
	if !ok {
		return
	}
	if a.cfg.History == nil {
		a.writeError(w, http.StatusNotFound, "history_disabled", "run history is not recorded")
		return
	}
	facts, err := a.cfg.History.Flags(r.Context(), code.Code, chi.URLParam(r, "runID"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	set := flags.NewSet()
	for _, f := range facts {
		set.Add(f.Entry())
	}
	text, err := flags.Encode(set)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, FlagsResponse{Flags: orEmpty(set.Entries()), Text: text})
}

// ListCrossovers returns the most recent recorded crossover pairs involving a dataset.
func (a *API) ListCrossovers(w http.ResponseWriter, r *http.Request) {
	code, ok := a.expocodeParam(w, r)
	if !ok {
		return
	}
	if a.cfg.History == nil {
		a.writeError(w, http.StatusNotFound, "history_disabled", "run history is not recorded")
		return
	}
	p := ParsePagination(r, DefaultLimit)
	facts, err := a.cfg.History.Crossovers(r.Context(), code.Code, p.Limit)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, orEmpty[factstore.CrossoverFact](facts))
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
