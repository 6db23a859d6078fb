// Package qcstatus tracks a dataset through quality control and archival.
//
// A Status holds the actual standing, changed only by explicit transitions, and a suggested
// standing that every evaluation recomputes from the latest check result, metadata
// acceptability and crossover severity.
package qcstatus

import (
	"fmt"
	"slices"
	"time"

	"github.com/oceanco2/intake/intake/pkg/crossover"
)

type State int

const (
	StateEditable State = iota
	StateAwaitingInitialQC
	StateAwaitingRequalification
	StateAccepted
	StateSuspended
	StateArchived
)

var stateNames = map[State]string{
	StateEditable:                "editable",
	StateAwaitingInitialQC:       "awaiting-initial-qc",
	StateAwaitingRequalification: "awaiting-requalification",
	StateAccepted:                "accepted",
	StateSuspended:               "suspended",
	StateArchived:                "archived",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("invalid state %q", string(b))
}

// Grade is the quality tier of an accepted dataset, 'A' (best) to 'E'. The zero Grade means
// ungraded.
type Grade byte

const (
	GradeNone Grade = 0
	GradeA    Grade = 'A'
	GradeB    Grade = 'B'
	GradeC    Grade = 'C'
	GradeD    Grade = 'D'
	GradeE    Grade = 'E'
)

func (g Grade) Valid() bool {
	return g >= GradeA && g <= GradeE
}

func (g Grade) String() string {
	if g == GradeNone {
		return ""
	}
	return string(rune(g))
}

func (g Grade) MarshalText() ([]byte, error) {
	if g != GradeNone && !g.Valid() {
		return nil, fmt.Errorf("invalid grade %q", rune(g))
	}
	return []byte(g.String()), nil
}

func (g *Grade) UnmarshalText(b []byte) error {
	gr, err := ParseGrade(string(b))
	if err != nil {
		return err
	}
	*g = gr
	return nil
}

// ParseGrade parses "A" through "E"; empty means ungraded.
func ParseGrade(s string) (Grade, error) {
	if s == "" {
		return GradeNone, nil
	}
	if len(s) == 1 {
		g := Grade(s[0] &^ 0x20)
		if g.Valid() {
			return g, nil
		}
	}
	return GradeNone, fmt.Errorf("%w %q", ErrInvalidGrade, s)
}

// lower returns the next worse grade, stopping at E.
func (g Grade) lower() Grade {
	if g < GradeE {
		return g + 1
	}
	return GradeE
}

// Standing is a state together with the grade that applies while accepted.
type Standing struct {
	State State `json:"state"`
	Grade Grade `json:"grade,omitempty"`
}

// Flag returns the one-character form of the standing.
func (s Standing) Flag() byte {
	switch s.State {
	case StateAwaitingInitialQC:
		return 'N'
	case StateAwaitingRequalification:
		return 'U'
	case StateAccepted:
		if s.Grade.Valid() {
			return byte(s.Grade)
		}
		return 'A'
	case StateSuspended:
		return 'S'
	case StateArchived:
		return 'R'
	default:
		return '-'
	}
}

func (s Standing) String() string {
	if s.State == StateAccepted && s.Grade.Valid() {
		return s.State.String() + "(" + s.Grade.String() + ")"
	}
	return s.State.String()
}

// ArchivePlan records how an accepted dataset is to be archived.
type ArchivePlan int

const (
	PlanUndecided ArchivePlan = iota
	PlanWithNextRelease
	PlanOwnerArchive
	PlanImmediateDOI
)

var planNames = map[ArchivePlan]string{
	PlanUndecided:       "undecided",
	PlanWithNextRelease: "with-next-release",
	PlanOwnerArchive:    "owner-archive",
	PlanImmediateDOI:    "immediate-doi",
}

func (p ArchivePlan) String() string {
	if name, ok := planNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ArchivePlan(%d)", int(p))
}

func (p ArchivePlan) MarshalText() ([]byte, error) {
	if _, ok := planNames[p]; !ok {
		return nil, fmt.Errorf("invalid archive plan %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *ArchivePlan) UnmarshalText(b []byte) error {
	plan, err := ParseArchivePlan(string(b))
	if err != nil {
		return err
	}
	*p = plan
	return nil
}

func ParseArchivePlan(s string) (ArchivePlan, error) {
	for p, name := range planNames {
		if name == s {
			return p, nil
		}
	}
	return PlanUndecided, fmt.Errorf("invalid archive plan %q", s)
}

// CheckOutcome is the verdict of an automated data check.
type CheckOutcome int

const (
	CheckNotRun CheckOutcome = iota
	CheckPassed
	CheckPassedWithWarnings
	CheckFailed
)

var outcomeNames = map[CheckOutcome]string{
	CheckNotRun:             "not-run",
	CheckPassed:             "passed",
	CheckPassedWithWarnings: "passed-with-warnings",
	CheckFailed:             "failed",
}

func (o CheckOutcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("CheckOutcome(%d)", int(o))
}

func (o CheckOutcome) MarshalText() ([]byte, error) {
	if _, ok := outcomeNames[o]; !ok {
		return nil, fmt.Errorf("invalid check outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *CheckOutcome) UnmarshalText(b []byte) error {
	for out, name := range outcomeNames {
		if name == string(b) {
			*o = out
			return nil
		}
	}
	return fmt.Errorf("invalid check outcome %q", string(b))
}

// CheckResult summarizes one run of an automated data checker.
type CheckResult struct {
	ID          string       `json:"id"`
	Outcome     CheckOutcome `json:"outcome"`
	Rows        int          `json:"rows"`
	WarningRows int          `json:"warning_rows"`
	ErrorRows   int          `json:"error_rows"`
	Summary     string       `json:"summary,omitempty"`
	At          time.Time    `json:"at"`
}

// WarningFraction is the share of rows with warnings or errors.
func (c *CheckResult) WarningFraction() float64 {
	if c == nil || c.Rows <= 0 {
		return 0
	}
	f := float64(c.WarningRows+c.ErrorRows) / float64(c.Rows)
	return min(f, 1)
}

// Comment is one audit entry.
type Comment struct {
	At    time.Time `json:"at"`
	Actor string    `json:"actor"`
	Text  string    `json:"text"`
}

// Status is the QC and archive status of one dataset.
type Status struct {
	Expocode    string      `json:"expocode"`
	Actual      Standing    `json:"actual"`
	Suggested   Standing    `json:"suggested"`
	ArchivePlan ArchivePlan `json:"archive_plan"`
	Comments    []Comment   `json:"comments"`

	MetadataAcceptable bool               `json:"metadata_acceptable"`
	LastCheck          *CheckResult       `json:"last_check,omitempty"`
	Crossovers         crossover.Severity `json:"crossovers"`
	EverAccepted       bool               `json:"ever_accepted"`

	// Version increases with every stored change.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStatus returns the status of a dataset that has just been created.
func NewStatus(expocode string, now time.Time) *Status {
	return &Status{
		Expocode:    expocode,
		Actual:      Standing{State: StateEditable},
		Suggested:   Standing{State: StateEditable},
		ArchivePlan: PlanUndecided,
		Comments:    []Comment{},
		UpdatedAt:   now,
	}
}

// Flag returns the one-character form of the actual standing.
func (s *Status) Flag() byte {
	return s.Actual.Flag()
}

func (s *Status) Clone() *Status {
	c := *s
	c.Comments = slices.Clone(s.Comments)
	if s.LastCheck != nil {
		lc := *s.LastCheck
		c.LastCheck = &lc
	}
	return &c
}
