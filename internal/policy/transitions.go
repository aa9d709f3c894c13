package policy

import (
	"fmt"

	"backend/internal/model"
)

// Action is a request lifecycle action gated by the transition table.
type Action string

const (
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSubmit Action = "submit"
	ActionCancel Action = "cancel"
)

// transitionMap lists the statuses each action is allowed from. Anything not
// listed is denied.
var transitionMap = map[Action][]string{
	ActionUpdate: {model.RequestStatusDraft, model.RequestStatusSubmitted, model.RequestStatusRejected},
	ActionDelete: {model.RequestStatusDraft, model.RequestStatusSubmitted, model.RequestStatusRejected},
	ActionSubmit: {model.RequestStatusDraft, model.RequestStatusRejected},
	ActionCancel: {model.RequestStatusDraft, model.RequestStatusSubmitted, model.RequestStatusSemiApproved},
}

// CanTransition reports whether action is allowed from the given status,
// independent of who is acting.
func CanTransition(status string, action Action) Decision {
	allowed, ok := transitionMap[action]
	if !ok {
		return deny(DenyStatus, fmt.Sprintf("unknown action %q", action))
	}
	for _, s := range allowed {
		if s == status {
			return allow()
		}
	}
	return deny(DenyStatus, fmt.Sprintf("cannot %s a request in status %s", action, status))
}
