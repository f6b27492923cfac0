package domain

import "time"

// Trigger names who asked for a status change. Each trigger may only drive
// a subset of the transitions.
type Trigger string

const (
	TriggerWebhook  Trigger = "webhook"
	TriggerAdmin    Trigger = "admin"
	TriggerSimulate Trigger = "simulate"
	TriggerExpiry   Trigger = "expiry"
)

// Verdict is the outcome of evaluating a requested transition.
type Verdict string

const (
	// VerdictApply means the transition is legal and should be performed.
	VerdictApply Verdict = "apply"
	// VerdictNoop means the order is already in the target status.
	VerdictNoop Verdict = "noop"
	// VerdictAlreadyTerminal means the order is cancelled; nothing may change.
	VerdictAlreadyTerminal Verdict = "already_terminal"
	// VerdictIllegal means the transition is not permitted for this trigger.
	VerdictIllegal Verdict = "illegal"
)

// edge is a (from, to) pair in family-neutral terms: "success" stands for
// paid or confirmed.
type edge struct {
	from, to Status
}

const statusSuccess Status = "success"

// allowedEdges lists the edges each trigger may drive.
var allowedEdges = map[Trigger]map[edge]bool{
	TriggerWebhook: {
		{StatusPending, statusSuccess}:   true,
		{StatusPending, StatusCancelled}: true,
	},
	TriggerAdmin: {
		{StatusPending, statusSuccess}:   true,
		{StatusPending, StatusCancelled}: true,
		{statusSuccess, StatusCancelled}: true,
	},
	TriggerSimulate: {
		{StatusPending, statusSuccess}: true,
	},
	TriggerExpiry: {
		{StatusPending, StatusCancelled}: true,
	},
}

func (f Family) neutral(s Status) Status {
	if s == f.SuccessStatus() {
		return statusSuccess
	}
	return s
}

// Decide evaluates moving an order of family f from current to target on
// behalf of trigger. Cancelled is absorbing: every request against it is
// VerdictAlreadyTerminal, including a repeated cancel.
func Decide(f Family, current, target Status, trigger Trigger) Verdict {
	if current == StatusCancelled {
		return VerdictAlreadyTerminal
	}
	if !f.HasStatus(target) || !f.HasStatus(current) {
		return VerdictIllegal
	}
	if current == target {
		return VerdictNoop
	}
	if allowedEdges[trigger][edge{f.neutral(current), f.neutral(target)}] {
		return VerdictApply
	}
	return VerdictIllegal
}

// ReleasesStock reports whether entering to from from gives reserved units
// back. Every legal entry into cancelled does; the order's released flag
// makes the release happen once.
func ReleasesStock(from, to Status) bool {
	return to == StatusCancelled && from != StatusCancelled
}

// StatusChange is one applied transition, captured with the pre-image
// status read under the order's row lock.
type StatusChange struct {
	OrderID string
	Family  Family
	From    Status
	To      Status
	Trigger Trigger
	Reason  string
	// Released lists the lines whose units went back to inventory; empty
	// unless this change performed the release.
	Released []OrderLine
	At       time.Time
}
