// Package workflow implements the task approval state machine: who may move
// a task between statuses, what each transition mutates, and which
// notifications it fans out. Every transition runs as one transaction;
// notifications are dispatched only after the transaction commits.
package workflow

import "math"

// Status is the lifecycle position of a task.
type Status string

const (
	StatusAvailable         Status = "available"
	StatusInProgress        Status = "in_progress"
	StatusDone              Status = "done"
	StatusPendingQA         Status = "pending_qa"
	StatusQAApproved        Status = "qa_approved"
	StatusPendingTester     Status = "pending_tester"
	StatusTesterApproved    Status = "tester_approved"
	StatusPendingSupervisor Status = "pending_supervisor"
	// StatusSupervisorApproved is the terminal accept state.
	StatusSupervisorApproved Status = "supervisor_approved"
	// StatusRejected is terminal for the cycle; rejected work resumes only
	// through a newly issued task.
	StatusRejected Status = "rejected"
	// StatusCompleted is reserved for external reporting. No transition
	// produces it.
	StatusCompleted Status = "completed"
)

var allStatuses = []Status{
	StatusAvailable,
	StatusInProgress,
	StatusDone,
	StatusPendingQA,
	StatusQAApproved,
	StatusPendingTester,
	StatusTesterApproved,
	StatusPendingSupervisor,
	StatusSupervisorApproved,
	StatusRejected,
	StatusCompleted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, s := range allStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known task statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ValidStatus reports whether s is a known task status.
func ValidStatus(s Status) bool {
	_, ok := statusSet[s]
	return ok
}

// DeviceStatus is the lifecycle position of a device.
type DeviceStatus string

const (
	DevicePending    DeviceStatus = "pending"
	DeviceInProgress DeviceStatus = "in_progress"
	DeviceCompleted  DeviceStatus = "completed"
	DeviceRejected   DeviceStatus = "rejected"
)

// Role is a closed enumeration of workshop roles.
type Role string

const (
	RoleTechnician Role = "technician"
	RoleQuality    Role = "quality"
	RoleTester     Role = "tester"
	RoleSupervisor Role = "supervisor"
	RolePlanning   Role = "planning"
	RoleAdmin      Role = "admin"
)

// Decision is the outcome of a review stage.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Transition identifies a workflow operation.
type Transition string

const (
	TransitionStart              Transition = "start"
	TransitionEnd                Transition = "end"
	TransitionQADecision         Transition = "qa_decision"
	TransitionTesterDecision     Transition = "tester_decision"
	TransitionSupervisorDecision Transition = "supervisor_decision"
)

// transitionRoles is the permission table: transition x role -> allowed.
// Admin is allowed everywhere, matching the system's role hierarchy.
var transitionRoles = map[Transition]map[Role]struct{}{
	TransitionStart:              {RoleTechnician: {}, RoleAdmin: {}},
	TransitionEnd:                {RoleTechnician: {}, RoleAdmin: {}},
	TransitionQADecision:         {RoleQuality: {}, RoleAdmin: {}},
	TransitionTesterDecision:     {RoleTester: {}, RoleAdmin: {}},
	TransitionSupervisorDecision: {RoleSupervisor: {}, RoleAdmin: {}},
}

// Allowed reports whether the role may trigger the transition.
func Allowed(t Transition, r Role) bool {
	roles, ok := transitionRoles[t]
	if !ok {
		return false
	}
	_, ok = roles[r]
	return ok
}

// Efficiency derives the performance ratio (standard/actual * 100) rounded
// to two decimals. Defined only when actual time is present and positive;
// never stored as authoritative.
func Efficiency(standardSeconds int, actualSeconds *int) *float64 {
	if actualSeconds == nil || *actualSeconds <= 0 {
		return nil
	}
	e := math.Round(float64(standardSeconds)/float64(*actualSeconds)*100*100) / 100
	return &e
}
