package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/expocode"
	"github.com/oceanco2/intake/intake/pkg/flags"
	"github.com/oceanco2/intake/intake/pkg/metadata"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
)

type MergeMetadataRequest struct {
	// Documents are merged left to right; the first is the primary.
	Documents []map[string]string `json:"documents"`
}

// FieldConflict is a field whose documents disagree.
type FieldConflict struct {
	Name        string `json:"name"`
	Primary     string `json:"primary"`
	Secondary   string `json:"secondary"`
	Replacement string `json:"replacement"`
}

type MergeMetadataResponse struct {
	Fields     map[string]string `json:"fields"`
	Conflicts  []FieldConflict   `json:"conflicts"`
	Missing    []string          `json:"missing"`
	Acceptable bool              `json:"acceptable"`
}

// MergeMetadata merges metadata documents describing one dataset.
func (a *API) MergeMetadata(w http.ResponseWriter, r *http.Request) {
	var req MergeMetadataRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		a.writeError(w, http.StatusBadRequest, "invalid_body", "at least one document is required")
		return
	}
	docs := make([]*metadata.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, metadata.FromStrings(d))
	}

	merged, err := metadata.MergeAll(docs...)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}

	resp := MergeMetadataResponse{
		Fields:     merged.Strings(),
		Conflicts:  []FieldConflict{},
		Missing:    orEmpty(merged.Missing()),
		Acceptable: merged.Acceptable(),
	}
	for _, name := range merged.Conflicts() {
		f, _ := merged.Get(name)
		p, s, _ := f.Alternatives()
		resp.Conflicts = append(resp.Conflicts, FieldConflict{
			Name:        name,
			Primary:     p,
			Secondary:   s,
			Replacement: metadata.ConflictMarker,
		})
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type EncodeFlagsRequest struct {
	Flags []flags.Entry `json:"flags"`
}

// FlagsResponse is a flag set in both its structured and text forms.
type FlagsResponse struct {
	Flags []flags.Entry `json:"flags"`
	Text  string        `json:"text"`
}

// EncodeFlags renders flag entries in the text form, sorted and without duplicates.
func (a *API) EncodeFlags(w http.ResponseWriter, r *http.Request) {
	var req EncodeFlagsRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	set := flags.NewSet(req.Flags...)
	text, err := flags.Encode(set)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, FlagsResponse{Flags: orEmpty(set.Entries()), Text: text})
}

type DecodeFlagsRequest struct {
	Text string `json:"text"`
}

// DecodeFlags parses the text form of a flag set. The response text is the canonical encoding.
func (a *API) DecodeFlags(w http.ResponseWriter, r *http.Request) {
	var req DecodeFlagsRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	set, err := flags.Decode(req.Text)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	text, err := flags.Encode(set)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, FlagsResponse{Flags: orEmpty(set.Entries()), Text: text})
}

type DetectCrossoversRequest struct {
	// Datasets maps a dataset id to its samples. The sample's own dataset field is ignored.
	Datasets map[string][]crossover.Sample `json:"datasets"`
	// FewMax overrides the largest pair count still rated "few".
	FewMax int `json:"few_max,omitempty"`
}

type DetectCrossoversResponse struct {
	Overlaps []*crossover.Overlap          `json:"overlaps"`
	Severity map[string]crossover.Severity `json:"severity"`
	Pairs    map[string]int                `json:"pairs"`
}

// DetectCrossovers scans the given datasets against themselves and each other.
func (a *API) DetectCrossovers(w http.ResponseWriter, r *http.Request) {
	var req DetectCrossoversRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if len(req.Datasets) == 0 {
		a.writeError(w, http.StatusBadRequest, "invalid_body", "at least one dataset is required")
		return
	}
	policy := crossover.DefaultPolicy()
	if req.FewMax > 0 {
		policy.FewMax = req.FewMax
	}

	datasets := make(map[string][]crossover.Sample, len(req.Datasets))
	for id, samples := range req.Datasets {
		if id == "" {
			a.writeError(w, http.StatusBadRequest, "invalid_body", "dataset ids must not be empty")
			return
		}
		out := make([]crossover.Sample, len(samples))
		for i, s := range samples {
			s.Dataset = id
			out[i] = s
		}
		datasets[id] = out
	}

	overlaps, err := crossover.DetectAll(r.Context(), datasets, a.cfg.Crossover)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	resp := DetectCrossoversResponse{
		Overlaps: orEmpty(overlaps),
		Severity: make(map[string]crossover.Severity, len(datasets)),
		Pairs:    make(map[string]int, len(datasets)),
	}
	for id := range datasets {
		resp.Severity[id] = crossover.Classify(overlaps, id, policy)
		resp.Pairs[id] = crossover.MatchedPairs(overlaps, id)
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type ExpocodeResponse struct {
	Code     string `json:"code"`
	ShipCode string `json:"ship_code"`
	Date     string `json:"date"`
	// Known reports whether a QC status exists for the dataset.
	Known bool `json:"known"`
	// Registered reports whether the dataset takes part in crossover scans.
	Registered bool `json:"registered"`
}

// GetExpocode normalizes an expocode and reports what is known about the dataset.
func (a *API) GetExpocode(w http.ResponseWriter, r *http.Request) {
	code, err := expocode.Normalize(chi.URLParam(r, "expocode"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	known := true
	if _, err := a.cfg.Store.Get(r.Context(), code.Code); err != nil {
		if !errors.Is(err, statusstore.ErrNotFound) {
			a.writeErr(w, r, err)
			return
		}
		known = false
	}
	_, registered := a.cfg.Pipeline.Registry().Get(code.Code)
	a.writeJSON(w, http.StatusOK, ExpocodeResponse{
		Code:       code.Code,
		ShipCode:   code.ShipCode,
		Date:       code.Date.Format("2006-01-02"),
		Known:      known,
		Registered: registered,
	})
}
