package qcstatus

import (
	"fmt"
	"slices"
)

// Action names an explicit transition requested by a user or manager.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionAccept         Action = "accept"
	ActionSuspend        Action = "suspend"
	ActionResubmit       Action = "resubmit"
	ActionEdit           Action = "edit"
	ActionSetArchivePlan Action = "archive-plan"
	ActionArchive        Action = "archive"
)

var Actions = []Action{
	ActionSubmit,
	ActionAccept,
	ActionSuspend,
	ActionResubmit,
	ActionEdit,
	ActionSetArchivePlan,
	ActionArchive,
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !slices.Contains(Actions, a) {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Request carries an action and the arguments it needs.
type Request struct {
	Action Action      `json:"action"`
	Actor  string      `json:"actor"`
	Grade  Grade       `json:"grade,omitempty"`
	Plan   ArchivePlan `json:"plan,omitempty"`
	// Reason explains a suspension or describes an edit.
	Reason string `json:"reason,omitempty"`
}

// Apply dispatches a request to the matching transition.
func (e *Engine) Apply(st *Status, req Request) error {
	switch req.Action {
	case ActionSubmit:
		return e.Submit(st, req.Actor)
	case ActionAccept:
		return e.Accept(st, req.Actor, req.Grade)
	case ActionSuspend:
		return e.Suspend(st, req.Actor, req.Reason)
	case ActionResubmit:
		return e.Resubmit(st, req.Actor)
	case ActionEdit:
		return e.RecordEdit(st, req.Actor, req.Reason)
	case ActionSetArchivePlan:
		return e.SetArchivePlan(st, req.Actor, req.Plan)
	case ActionArchive:
		return e.Archive(st, req.Actor)
	}
	return fmt.Errorf("unknown action %q", req.Action)
}
