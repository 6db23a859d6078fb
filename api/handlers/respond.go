package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oceanco2/intake/api/handlers/dberror"
	"github.com/oceanco2/intake/intake/pkg/dserror"
	"github.com/oceanco2/intake/intake/pkg/expocode"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// Reasons lists why a dataset cannot be submitted.
	Reasons []string `json:"reasons,omitempty"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("api: failed to write response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, code, msg string) {
	a.writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// writeErr maps err to a response. Unexpected errors are logged and reported.
func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var notSubmittable *qcstatus.NotSubmittableError
	var dsErr *dserror.Error
	switch {
	case errors.As(err, &notSubmittable):
		a.writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "not_submittable",
			Message: err.Error(),
			Reasons: notSubmittable.Reasons,
		})
	case errors.Is(err, qcstatus.ErrInvalidTransition):
		a.writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, qcstatus.ErrInvalidGrade):
		a.writeError(w, http.StatusBadRequest, "invalid_grade", err.Error())
	case errors.Is(err, statusstore.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, pipeline.ErrInvalidColumnHeader):
		a.writeError(w, http.StatusUnprocessableEntity, "invalid_column_header", err.Error())
	case errors.As(err, &dsErr):
		status := http.StatusUnprocessableEntity
		if dsErr.Kind == dserror.KindInvalidIdentifier {
			status = http.StatusBadRequest
		}
		a.writeError(w, status, errorCode(dsErr.Kind), err.Error())
	default:
		status := dberror.HTTPStatus(err)
		a.log.Error("api: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error_type", dberror.Classify(err).String(),
			"error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		code := "internal_error"
		if status == http.StatusServiceUnavailable {
			code = "unavailable"
		}
		a.writeError(w, status, code, dberror.UserMessage(err))
	}
}

// errorCode renders a kind as a snake_case error code.
func errorCode(k dserror.Kind) string {
	switch k {
	case dserror.KindShapeMismatch:
		return "shape_mismatch"
	case dserror.KindTypeMismatch:
		return "type_mismatch"
	case dserror.KindParseFailure:
		return "parse_failure"
	case dserror.KindUnresolvedColumnType:
		return "unresolved_column_type"
	case dserror.KindMalformedFlagSet:
		return "malformed_flag_set"
	case dserror.KindMalformedFlagEntry:
		return "malformed_flag_entry"
	case dserror.KindIdentifierMismatch:
		return "identifier_mismatch"
	case dserror.KindInvalidIdentifier:
		return "invalid_identifier"
	default:
		return "dataset_error"
	}
}

// decodeBody reads a JSON request body into v, rejecting unknown fields and oversized bodies.
// It writes the error response itself and reports whether decoding succeeded.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		if errors.Is(err, io.EOF) {
			a.writeError(w, http.StatusBadRequest, "invalid_body", "request body is empty")
			return false
		}
		a.writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// expocodeParam normalizes the {expocode} route parameter, writing a 400 when it is invalid.
func (a *API) expocodeParam(w http.ResponseWriter, r *http.Request) (expocode.Expocode, bool) {
	code, err := expocode.Normalize(chi.URLParam(r, "expocode"))
	if err != nil {
		a.writeErr(w, r, err)
		return expocode.Expocode{}, false
	}
	return code, true
}
