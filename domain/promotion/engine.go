package promotion

import (
	"fmt"
	"time"
)

// Command is one action applied to a request.
type Command struct {
	Action  Action
	Actor   string
	Comment string

	// At is the time the action takes effect.
	At time.Time

	// RecordID identifies the appended ReviewRecord. Generated from the
	// request id when empty.
	RecordID string

	// ExpectLevel, when set, must equal the request's current level.
	ExpectLevel Level
}

// Outcome is the result of a legal transition.
type Outcome struct {
	// Request is the updated request, nil after a delete.
	Request *PullRequest

	// Record is the appended history entry (zero for delete).
	Record ReviewRecord

	// Event describes the change.
	Event Event
}

// Engine applies the lifecycle transition table. It holds no state of its
// own and never modifies its input request.
type Engine struct {
	router Router
}

// NewEngine creates an engine. A nil router uses a TableRouter that always
// escalates.
func NewEngine(router Router) *Engine {
	if router == nil {
		router = NewTableRouter(nil)
	}
	return &Engine{router: router}
}

// Router returns the router consulted for review actions.
func (e *Engine) Router() Router {
	return e.router
}

// Apply validates cmd against the transition table and returns the next
// version of pr. Illegal moves return an *InvalidTransitionError.
func (e *Engine) Apply(pr *PullRequest, cmd Command) (*Outcome, error) {
	if pr == nil {
		return nil, ErrInvalidRequest
	}
	if !cmd.Action.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, cmd.Action)
	}
	if !pr.Status.Allows(cmd.Action) {
		return nil, invalidTransition(pr.Status, cmd.Action, pr.CurrentLevel)
	}
	if cmd.ExpectLevel != LevelNone && cmd.ExpectLevel != pr.CurrentLevel {
		return nil, invalidTransition(pr.Status, cmd.Action, cmd.ExpectLevel)
	}

	at := cmd.At
	if at.IsZero() {
		at = time.Now()
	}

	if cmd.Action == ActionDelete {
		return &Outcome{
			Event: Event{
				Type:      EventDeleted,
				RequestID: pr.ID,
				Timestamp: at,
				Actor:     cmd.Actor,
				From:      pr.Status,
			},
		}, nil
	}

	level := pr.CurrentLevel
	next := pr.Clone()

	switch cmd.Action {
	case ActionSubmit:
		next.Status = StatusPending
		next.CurrentLevel = Level1
		if next.ApplyTime == nil {
			t := at
			next.ApplyTime = &t
		}
		next.Reviewer = ""
		next.ReviewTime = nil
		next.ReviewComment = ""

	case ActionWithdraw:
		next.Status = StatusDraft
		next.CurrentLevel = LevelNone

	case ActionApprove, ActionReject, ActionReturn:
		if !level.IsValid() {
			return nil, invalidTransition(pr.Status, cmd.Action, level)
		}
		decision, err := e.router.Decide(pr, cmd.Action, level)
		if err != nil {
			return nil, err
		}
		next.Status = decision.NextStatus
		next.CurrentLevel = decision.NextLevel
		t := at
		next.Reviewer = cmd.Actor
		next.ReviewTime = &t
		next.ReviewComment = cmd.Comment
	}

	recordID := cmd.RecordID
	if recordID == "" {
		recordID = fmt.Sprintf("%s-%d", pr.ID, len(pr.ReviewHistory)+1)
	}
	record := ReviewRecord{
		ID:          recordID,
		Action:      cmd.Action,
		Level:       level,
		Operator:    cmd.Actor,
		OperateTime: at,
		Comment:     cmd.Comment,
	}
	next.ReviewHistory = append(next.ReviewHistory, record)
	next.Touch(at)

	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}

	return &Outcome{
		Request: next,
		Record:  record,
		Event: Event{
			Type:      eventTypeFor(cmd.Action, next.Status),
			RequestID: pr.ID,
			Timestamp: next.UpdatedAt,
			Actor:     cmd.Actor,
			From:      pr.Status,
			To:        next.Status,
			Level:     next.CurrentLevel,
			Comment:   cmd.Comment,
		},
	}, nil
}

// CheckDelete reports whether pr may be hard-deleted.
func (e *Engine) CheckDelete(pr *PullRequest) error {
	if pr == nil {
		return ErrInvalidRequest
	}
	if !pr.Status.Allows(ActionDelete) {
		return invalidTransition(pr.Status, ActionDelete, pr.CurrentLevel)
	}
	return nil
}
