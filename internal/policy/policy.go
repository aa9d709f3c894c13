// Package policy holds the pure decision rules of the approval workflow:
// which lifecycle actions a request admits in its current status, and which
// actors may approve or reject it. Policies take all context as parameters
// and touch no storage, so they can be tested exhaustively.
package policy

// DenyCode classifies why a policy denied an action, letting callers map
// authorization denials and invalid state transitions to different HTTP codes.
type DenyCode int

const (
	DenyNone DenyCode = iota
	// DenyPermission: the actor is not authorized (role, department, peer rule).
	DenyPermission
	// DenyStatus: the action is not valid from the request's current status.
	DenyStatus
)

// Decision is the result of a policy check.
type Decision struct {
	Allowed bool
	Code    DenyCode
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code DenyCode, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}
