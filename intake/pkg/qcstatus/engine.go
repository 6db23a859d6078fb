package qcstatus

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/crossover"
)

// SystemActor attributes comments written by automated evaluation.
const SystemActor = "system"

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotSubmittable    = errors.New("dataset is not submittable")
	ErrInvalidGrade      = errors.New("invalid grade")
)

// NotSubmittableError lists why a dataset cannot leave the editable state.
type NotSubmittableError struct {
	Reasons []string
}

func (e *NotSubmittableError) Error() string {
	return ErrNotSubmittable.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *NotSubmittableError) Is(target error) bool {
	return target == ErrNotSubmittable
}

// GradePolicy maps check warnings to grades. A dataset whose share of flagged rows is at most
// MaxWarningFraction[i] earns grade A+i; anything worse earns E.
type GradePolicy struct {
	MaxWarningFraction [4]float64
}

func DefaultGradePolicy() GradePolicy {
	return GradePolicy{MaxWarningFraction: [4]float64{0, 0.05, 0.20, 0.50}}
}

// Grade returns the grade for a check result, one step lower when a few crossovers remain.
func (p GradePolicy) Grade(check *CheckResult, crossovers crossover.Severity) Grade {
	frac := check.WarningFraction()
	g := GradeE
	for i, limit := range p.MaxWarningFraction {
		if frac <= limit {
			g = GradeA + Grade(i)
			break
		}
	}
	if crossovers == crossover.SeverityFew {
		g = g.lower()
	}
	return g
}

type EngineConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Grades GradePolicy
}

func (cfg *EngineConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Grades == (GradePolicy{}) {
		cfg.Grades = DefaultGradePolicy()
	}
	return nil
}

// Engine applies transitions to dataset statuses. It holds no per-dataset state; callers must
// not apply two transitions to the same dataset at once.
type Engine struct {
	log *slog.Logger
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Evaluation is the input to an automated re-evaluation.
type Evaluation struct {
	Check              *CheckResult
	MetadataAcceptable bool
	Crossovers         crossover.Severity
}

// Evaluate records the evaluation inputs and recomputes the suggested standing. The actual
// standing is left alone.
func (e *Engine) Evaluate(st *Status, ev Evaluation) Standing {
	st.LastCheck = ev.Check
	st.MetadataAcceptable = ev.MetadataAcceptable
	st.Crossovers = ev.Crossovers

	next := e.suggest(ev)
	if next != st.Suggested {
		e.comment(st, SystemActor, fmt.Sprintf("suggested status changed from %s to %s", st.Suggested, next))
		st.Suggested = next
	}
	st.UpdatedAt = e.cfg.Clock.Now()

	e.log.Debug("qcstatus: evaluated",
		"expocode", st.Expocode,
		"suggested", next.String(),
		"actual", st.Actual.String())
	return next
}

func (e *Engine) suggest(ev Evaluation) Standing {
	switch {
	case ev.Check == nil || ev.Check.Outcome == CheckNotRun || ev.Check.Outcome == CheckFailed:
		return Standing{State: StateEditable}
	case !ev.MetadataAcceptable:
		return Standing{State: StateEditable}
	case ev.Crossovers == crossover.SeverityMany:
		return Standing{State: StateSuspended}
	}
	return Standing{State: StateAccepted, Grade: e.cfg.Grades.Grade(ev.Check, ev.Crossovers)}
}

// Submittable returns the reasons a dataset cannot leave the editable state, if any.
func Submittable(st *Status) []string {
	var reasons []string
	if !st.MetadataAcceptable {
		reasons = append(reasons, "metadata is incomplete or has unresolved conflicts")
	}
	switch {
	case st.LastCheck == nil || st.LastCheck.Outcome == CheckNotRun:
		reasons = append(reasons, "data check has not been run")
	case st.LastCheck.Outcome == CheckFailed:
		reasons = append(reasons, "data check failed")
	}
	return reasons
}

func checkSubmittable(st *Status) error {
	if reasons := Submittable(st); len(reasons) > 0 {
		return &NotSubmittableError{Reasons: reasons}
	}
	return nil
}

// Submit sends an editable dataset to initial QC.
func (e *Engine) Submit(st *Status, actor string) error {
	if st.Actual.State != StateEditable {
		return e.invalid(st, "submit")
	}
	if err := checkSubmittable(st); err != nil {
		return err
	}
	e.transition(st, actor, Standing{State: StateAwaitingInitialQC}, "submitted for QC")
	return nil
}

// Accept grades a dataset awaiting QC, or a suspended one.
func (e *Engine) Accept(st *Status, actor string, grade Grade) error {
	if !grade.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidGrade, grade.String())
	}
	switch st.Actual.State {
	case StateAwaitingInitialQC, StateAwaitingRequalification, StateSuspended:
	default:
		return e.invalid(st, "accept")
	}
	st.EverAccepted = true
	e.transition(st, actor, Standing{State: StateAccepted, Grade: grade}, "accepted with grade "+grade.String())
	return nil
}

// Suspend holds a dataset in or after QC pending resolution of the given reason.
func (e *Engine) Suspend(st *Status, actor, reason string) error {
	switch st.Actual.State {
	case StateAwaitingInitialQC, StateAwaitingRequalification, StateAccepted:
	default:
		return e.invalid(st, "suspend")
	}
	text := "suspended"
	if reason = strings.TrimSpace(reason); reason != "" {
		text += ": " + reason
	}
	e.transition(st, actor, Standing{State: StateSuspended}, text)
	return nil
}

// Resubmit returns a suspended dataset to QC. A dataset that was accepted before must be
// requalified.
func (e *Engine) Resubmit(st *Status, actor string) error {
	if st.Actual.State != StateSuspended {
		return e.invalid(st, "resubmit")
	}
	if err := checkSubmittable(st); err != nil {
		return err
	}
	next := StateAwaitingInitialQC
	if st.EverAccepted {
		next = StateAwaitingRequalification
	}
	e.transition(st, actor, Standing{State: next}, "resubmitted for QC")
	return nil
}

// RecordEdit notes a change to a dataset's data or metadata. An accepted or archived dataset
// must be requalified; other states are kept.
func (e *Engine) RecordEdit(st *Status, actor, what string) error {
	text := "edited"
	if what = strings.TrimSpace(what); what != "" {
		text += ": " + what
	}
	switch st.Actual.State {
	case StateAccepted, StateArchived:
		e.transition(st, actor, Standing{State: StateAwaitingRequalification}, text+"; requalification required")
	default:
		e.comment(st, actor, text)
		st.UpdatedAt = e.cfg.Clock.Now()
	}
	return nil
}

// SetArchivePlan changes the archive plan of a dataset that is not yet archived.
func (e *Engine) SetArchivePlan(st *Status, actor string, plan ArchivePlan) error {
	if _, ok := planNames[plan]; !ok {
		return fmt.Errorf("invalid archive plan %d", int(plan))
	}
	if st.Actual.State == StateArchived {
		return e.invalid(st, "set archive plan")
	}
	prev := st.ArchivePlan
	st.ArchivePlan = plan
	e.comment(st, actor, fmt.Sprintf("archive plan changed from %s to %s", prev, plan))
	st.UpdatedAt = e.cfg.Clock.Now()
	return nil
}

// Archive marks an accepted dataset with a decided archive plan as archived.
func (e *Engine) Archive(st *Status, actor string) error {
	if st.Actual.State != StateAccepted || st.ArchivePlan == PlanUndecided {
		return e.invalid(st, "archive")
	}
	e.transition(st, actor, Standing{State: StateArchived, Grade: st.Actual.Grade}, "archived ("+st.ArchivePlan.String()+")")
	return nil
}

func (e *Engine) transition(st *Status, actor string, next Standing, text string) {
	prev := st.Actual
	st.Actual = next
	e.comment(st, actor, text)
	st.UpdatedAt = e.cfg.Clock.Now()

	e.log.Info("qcstatus: transition",
		"expocode", st.Expocode,
		"from", prev.String(),
		"to", next.String(),
		"actor", actor)
}

func (e *Engine) comment(st *Status, actor, text string) {
	if actor == "" {
		actor = SystemActor
	}
	st.Comments = append(st.Comments, Comment{
		At:    e.cfg.Clock.Now(),
		Actor: actor,
		Text:  text,
	})
}

func (e *Engine) invalid(st *Status, action string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, st.Actual.State)
}
