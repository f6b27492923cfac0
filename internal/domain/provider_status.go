package domain

import (
	"strings"
)

// SettlementAction is what a provider status asks the state machine to do.
type SettlementAction string

const (
	ActionSucceed SettlementAction = "succeed"
	ActionCancel  SettlementAction = "cancel"
	// ActionRefresh only updates the external status mirror.
	ActionRefresh SettlementAction = "refresh"
)

// ProviderStatusMapping is one row of the translation table.
type ProviderStatusMapping struct {
	Action SettlementAction
	// Known is false for statuses absent from the table.
	Known bool
	// Review flags statuses that need a human (refunds, chargebacks).
	Review bool
}

// providerStatuses translates Mercado Pago payment statuses. Anything not
// listed is an unknown status and never moves an order.
var providerStatuses = map[string]ProviderStatusMapping{
	"approved":     {Action: ActionSucceed, Known: true},
	"rejected":     {Action: ActionCancel, Known: true},
	"cancelled":    {Action: ActionCancel, Known: true},
	"pending":      {Action: ActionRefresh, Known: true},
	"in_process":   {Action: ActionRefresh, Known: true},
	"authorized":   {Action: ActionRefresh, Known: true},
	"in_mediation": {Action: ActionRefresh, Known: true},
	"refunded":     {Action: ActionRefresh, Known: true, Review: true},
	"charged_back": {Action: ActionRefresh, Known: true, Review: true},
}

// TranslateProviderStatus looks raw up in the translation table. Matching
// ignores case and surrounding space.
func TranslateProviderStatus(raw string) ProviderStatusMapping {
	if m, ok := providerStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return m
	}
	return ProviderStatusMapping{Action: ActionRefresh}
}

// Target returns the status the action aims for in family f, or false for
// a refresh.
func (a SettlementAction) Target(f Family) (Status, bool) {
	switch a {
	case ActionSucceed:
		return f.SuccessStatus(), true
	case ActionCancel:
		return StatusCancelled, true
	default:
		return "", false
	}
}
