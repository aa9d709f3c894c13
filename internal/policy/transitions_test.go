package policy

import (
	"strings"
	"testing"

	"backend/internal/model"
)

// Full status x action cross-product. Anything not in the transition table
// must be denied.
func TestCanTransition(t *testing.T) {
	allowed := map[Action]map[string]bool{
		ActionUpdate: {model.RequestStatusDraft: true, model.RequestStatusSubmitted: true, model.RequestStatusRejected: true},
		ActionDelete: {model.RequestStatusDraft: true, model.RequestStatusSubmitted: true, model.RequestStatusRejected: true},
		ActionSubmit: {model.RequestStatusDraft: true, model.RequestStatusRejected: true},
		ActionCancel: {model.RequestStatusDraft: true, model.RequestStatusSubmitted: true, model.RequestStatusSemiApproved: true},
	}

	statuses := []string{
		model.RequestStatusDraft,
		model.RequestStatusSubmitted,
		model.RequestStatusSemiApproved,
		model.RequestStatusApproved,
		model.RequestStatusRejected,
		model.RequestStatusPaid,
	}
	actions := []Action{ActionUpdate, ActionDelete, ActionSubmit, ActionCancel}

	for _, action := range actions {
		for _, status := range statuses {
			dec := CanTransition(status, action)
			want := allowed[action][status]
			if dec.Allowed != want {
				t.Fatalf("CanTransition(%q, %q)=%v, want %v", status, action, dec.Allowed, want)
			}
			if !dec.Allowed {
				if dec.Code != DenyStatus {
					t.Fatalf("CanTransition(%q, %q) deny code = %v, want DenyStatus", status, action, dec.Code)
				}
				if !strings.Contains(dec.Reason, status) || !strings.Contains(dec.Reason, string(action)) {
					t.Fatalf("denial reason %q must name status %q and action %q", dec.Reason, status, action)
				}
			}
		}
	}
}

func TestCanTransitionUnknownAction(t *testing.T) {
	dec := CanTransition(model.RequestStatusDraft, Action("archive"))
	if dec.Allowed {
		t.Fatal("unknown action must be denied")
	}
}
