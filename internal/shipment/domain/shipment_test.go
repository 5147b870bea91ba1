package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func TestTransitions(t *testing.T) {
	assert.True(t, StatusLabelCreated.CanTransition(StatusInTransit))
	assert.True(t, StatusLabelCreated.CanTransition(StatusFailed))
	assert.False(t, StatusLabelCreated.CanTransition(StatusDelivered))
	assert.False(t, StatusLabelCreated.CanTransition(StatusReturned))
	assert.True(t, StatusInTransit.CanTransition(StatusReturned))
	assert.True(t, StatusOutForDelivery.CanTransition(StatusDelivered))

	for _, s := range []Status{StatusDelivered, StatusFailed, StatusReturned} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.CanTransition(StatusInTransit), s)
	}
	assert.False(t, Status("lost").IsTerminal())
}

func TestStatusForCode(t *testing.T) {
	cases := map[string]Status{
		"pickup":           StatusInTransit,
		"HUB_SCAN":         StatusInTransit,
		"out_for_delivery": StatusOutForDelivery,
		"delivered":        StatusDelivered,
		" failed ":         StatusFailed,
		"returned":         StatusReturned,
		"label_created":    StatusLabelCreated,
	}
	for code, want := range cases {
		got, ok := StatusForCode(code)
		require.True(t, ok, code)
		assert.Equal(t, want, got, code)
	}
	_, ok := StatusForCode("teleported")
	assert.False(t, ok)
}

func TestApplySetsTimestampsOnce(t *testing.T) {
	t0 := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	s := Shipment{ID: 1, Status: StatusLabelCreated}

	changed, err := s.Apply(StatusInTransit, "", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, s.ShippedAt)
	assert.Equal(t, t0, *s.ShippedAt)

	changed, err = s.Apply(StatusInTransit, "", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.Apply(StatusOutForDelivery, "", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, t0, *s.ShippedAt)

	_, err = s.Apply(StatusDelivered, "", t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, s.DeliveredAt)
	assert.Equal(t, t0.Add(3*time.Hour), *s.DeliveredAt)

	_, err = s.Apply(StatusReturned, "refused", t0)
	assert.True(t, apperr.IsConflict(err))
}

func TestApplyRecordsFailureReason(t *testing.T) {
	s := Shipment{Status: StatusInTransit}
	_, err := s.Apply(StatusFailed, "address not found", time.Now())
	require.NoError(t, err)
	require.NotNil(t, s.FailureReason)
	assert.Equal(t, "address not found", *s.FailureReason)
}

func TestGuardQtyOverShip(t *testing.T) {
	assert.True(t, apperr.IsConflict(GuardQty(2, 0, 3)))
	assert.NoError(t, GuardQty(2, 0, 2))
	assert.True(t, apperr.IsConflict(GuardQty(2, 2, 1)))
	assert.True(t, apperr.IsValidation(GuardQty(2, 0, 0)))
}

func TestNewTrackingNumber(t *testing.T) {
	n := NewTrackingNumber(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^INT-20250901-[0-9A-F]{6}$`, n)
}
