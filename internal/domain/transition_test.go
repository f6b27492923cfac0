package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		family  Family
		from    Status
		to      Status
		trigger Trigger
		want    Verdict
	}{
		{"webhook approves pending", FamilyProductOrder, StatusPending, StatusPaid, TriggerWebhook, VerdictApply},
		{"webhook rejects pending", FamilyProductOrder, StatusPending, StatusCancelled, TriggerWebhook, VerdictApply},
		{"webhook cannot cancel paid", FamilyProductOrder, StatusPaid, StatusCancelled, TriggerWebhook, VerdictIllegal},
		{"webhook repeat approval", FamilyProductOrder, StatusPaid, StatusPaid, TriggerWebhook, VerdictNoop},
		{"webhook on cancelled", FamilyProductOrder, StatusCancelled, StatusCancelled, TriggerWebhook, VerdictAlreadyTerminal},
		{"late approval on cancelled", FamilyProductOrder, StatusCancelled, StatusPaid, TriggerWebhook, VerdictAlreadyTerminal},
		{"admin refunds paid", FamilyProductOrder, StatusPaid, StatusCancelled, TriggerAdmin, VerdictApply},
		{"admin cannot reopen", FamilyProductOrder, StatusPaid, StatusPending, TriggerAdmin, VerdictIllegal},
		{"admin on cancelled", FamilyProductOrder, StatusCancelled, StatusPaid, TriggerAdmin, VerdictAlreadyTerminal},
		{"simulate pays", FamilyProductOrder, StatusPending, StatusPaid, TriggerSimulate, VerdictApply},
		{"simulate cannot cancel", FamilyProductOrder, StatusPending, StatusCancelled, TriggerSimulate, VerdictIllegal},
		{"expiry cancels pending", FamilyProductOrder, StatusPending, StatusCancelled, TriggerExpiry, VerdictApply},
		{"expiry leaves paid", FamilyProductOrder, StatusPaid, StatusCancelled, TriggerExpiry, VerdictIllegal},
		{"reservation confirms", FamilyEventReservation, StatusPending, StatusConfirmed, TriggerWebhook, VerdictApply},
		{"reservation rejects paid vocabulary", FamilyEventReservation, StatusPending, StatusPaid, TriggerAdmin, VerdictIllegal},
		{"reservation admin cancel confirmed", FamilyEventReservation, StatusConfirmed, StatusCancelled, TriggerAdmin, VerdictApply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.family, tt.from, tt.to, tt.trigger))
		})
	}
}

func TestReleasesStock(t *testing.T) {
	assert.True(t, ReleasesStock(StatusPending, StatusCancelled))
	assert.True(t, ReleasesStock(StatusPaid, StatusCancelled))
	assert.False(t, ReleasesStock(StatusPending, StatusPaid))
	assert.False(t, ReleasesStock(StatusCancelled, StatusCancelled))
}

func TestTranslateProviderStatus(t *testing.T) {
	tests := []struct {
		raw    string
		action SettlementAction
		known  bool
		review bool
	}{
		{"approved", ActionSucceed, true, false},
		{" Approved ", ActionSucceed, true, false},
		{"rejected", ActionCancel, true, false},
		{"cancelled", ActionCancel, true, false},
		{"pending", ActionRefresh, true, false},
		{"in_process", ActionRefresh, true, false},
		{"charged_back", ActionRefresh, true, true},
		{"refunded", ActionRefresh, true, true},
		{"definitely_new_status", ActionRefresh, false, false},
		{"", ActionRefresh, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			m := TranslateProviderStatus(tt.raw)
			assert.Equal(t, tt.action, m.Action)
			assert.Equal(t, tt.known, m.Known)
			assert.Equal(t, tt.review, m.Review)
		})
	}
}

func TestSettlementAction_Target(t *testing.T) {
	s, ok := ActionSucceed.Target(FamilyEventReservation)
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, s)

	s, ok = ActionCancel.Target(FamilyProductOrder)
	assert.True(t, ok)
	assert.Equal(t, StatusCancelled, s)

	_, ok = ActionRefresh.Target(FamilyProductOrder)
	assert.False(t, ok)
}

func TestDomainErrors(t *testing.T) {
	shortfalls := []Shortfall{{ItemID: "a", Requested: 3, Available: 2}}
	err := InsufficientStockError(shortfalls)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	assert.Equal(t, shortfalls, Shortfalls(err))

	err = InvalidItemError([]string{"ghost"})
	assert.ErrorIs(t, err, ErrInvalidItem)
	assert.Equal(t, 422, apperrors.HTTPStatus(err))

	assert.ErrorIs(t, IllegalTransitionError(StatusPaid, StatusPending), ErrIllegalTransition)
	assert.ErrorIs(t, AlreadyTerminalError(StatusCancelled), ErrAlreadyTerminal)
	assert.ErrorIs(t, AuthError("bad signature"), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, OrderNotFoundError("x"), apperrors.ErrNotFound)
	assert.Nil(t, Shortfalls(errors.New("plain")))
}
