package thread

import "strings"

// Status is the moderation state of a comment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSpam     Status = "spam"
)

var allStatuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusSpam}

func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSpam:
		return true
	}
	return false
}

// Public reports whether comments in this state are shown to widget visitors.
func (s Status) Public() bool {
	return s == StatusApproved
}

func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", Invalid("status", "status must be one of pending, approved, rejected, spam")
	}
	return status, nil
}

// InitialStatus applies the trust policy outcome to a new comment.
func InitialStatus(trusted bool) Status {
	if trusted {
		return StatusApproved
	}
	return StatusPending
}

// Action is an owner's moderation decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionSpam    Action = "spam"
	// ActionUnapprove puts a comment back in the queue.
	ActionUnapprove Action = "unapprove"
)

var actionAliases = map[string]Action{
	"approve":   ActionApprove,
	"approved":  ActionApprove,
	"reject":    ActionReject,
	"rejected":  ActionReject,
	"spam":      ActionSpam,
	"markspam":  ActionSpam,
	"mark_spam": ActionSpam,
	"unapprove": ActionUnapprove,
	"pending":   ActionUnapprove,
}

func ParseAction(value string) (Action, error) {
	action, ok := actionAliases[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return "", Invalid("action", "action must be one of approve, reject, spam, unapprove")
	}
	return action, nil
}

// ActionFor returns the action whose target is the given status.
func ActionFor(status Status) (Action, error) {
	switch status {
	case StatusApproved:
		return ActionApprove, nil
	case StatusRejected:
		return ActionReject, nil
	case StatusSpam:
		return ActionSpam, nil
	case StatusPending:
		return ActionUnapprove, nil
	}
	return "", Invalid("status", "status must be one of pending, approved, rejected, spam")
}

func (a Action) Target() Status {
	switch a {
	case ActionApprove:
		return StatusApproved
	case ActionReject:
		return StatusRejected
	case ActionSpam:
		return StatusSpam
	case ActionUnapprove:
		return StatusPending
	}
	return ""
}

var transitions = map[Action][]Status{
	ActionApprove:   {StatusPending, StatusRejected, StatusSpam, StatusApproved},
	ActionReject:    {StatusPending, StatusApproved, StatusRejected, StatusSpam},
	ActionSpam:      {StatusPending, StatusApproved, StatusRejected, StatusSpam},
	ActionUnapprove: {StatusPending, StatusApproved, StatusRejected, StatusSpam},
}

// Transition returns the state reached by applying action to from.
// Re-applying an action to a comment already in its target state is a no-op.
func Transition(from Status, action Action) (Status, error) {
	if !from.Valid() {
		return "", Invalid("status", "unknown current status "+string(from))
	}
	allowed, ok := transitions[action]
	if !ok {
		return "", Invalid("action", "unknown action "+string(action))
	}
	for _, candidate := range allowed {
		if candidate == from {
			return action.Target(), nil
		}
	}
	return "", Invalid("action", "cannot "+string(action)+" a "+string(from)+" comment")
}

// Outcome is the per-id result of a bulk moderation call.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeForbidden Outcome = "forbidden"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "error"
)
