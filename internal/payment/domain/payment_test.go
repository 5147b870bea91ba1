package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestIntentTransitions(t *testing.T) {
	assert.True(t, IntentRequiresPaymentMethod.CanTransition(IntentRequiresConfirmation))
	assert.True(t, IntentRequiresPaymentMethod.CanTransition(IntentSucceeded))
	assert.True(t, IntentProcessing.CanTransition(IntentFailed))
	assert.False(t, IntentProcessing.CanTransition(IntentRequiresConfirmation))
	assert.False(t, IntentSucceeded.CanTransition(IntentFailed))
	assert.False(t, IntentCanceled.CanTransition(IntentSucceeded))
	assert.False(t, IntentProcessing.CanTransition("bogus"))
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, StatusAuthorized.CanTransition(StatusCaptured))
	assert.True(t, StatusAuthorized.CanTransition(StatusFailed))
	assert.True(t, StatusCaptured.CanTransition(StatusRefunded))
	assert.True(t, StatusCaptured.CanTransition(StatusFailed))
	assert.False(t, StatusAuthorized.CanTransition(StatusRefunded))
	assert.False(t, StatusRefunded.CanTransition(StatusCaptured))
	assert.False(t, StatusFailed.CanTransition(StatusFailed))
}

func TestRefundTransitions(t *testing.T) {
	assert.True(t, RefundPending.CanTransition(RefundSucceeded))
	assert.True(t, RefundPending.CanTransition(RefundFailed))
	assert.False(t, RefundSucceeded.CanTransition(RefundFailed))
}

func TestValidateRefundBound(t *testing.T) {
	amount := dec("100")

	assert.NoError(t, ValidateRefund(amount, dec("0"), dec("60")))
	assert.True(t, apperr.IsConflict(ValidateRefund(amount, dec("60"), dec("50"))))
	assert.NoError(t, ValidateRefund(amount, dec("60"), dec("40")))
	assert.True(t, apperr.IsValidation(ValidateRefund(amount, dec("0"), dec("0"))))
	assert.True(t, apperr.IsValidation(ValidateRefund(amount, dec("0"), dec("-1"))))
}

func TestRefundSucceededEventPayload(t *testing.T) {
	body, err := json.Marshal(RefundSucceededEvent{RefundID: 3, PaymentID: 2, OrderID: 1, Amount: "40.00", Full: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"refund_id":3,"payment_id":2,"order_id":1,"amount":"40.00","full":true}`, string(body))

	// the status and the event type share a word but not a value
	assert.Equal(t, RefundStatus("succeeded"), RefundSucceeded)
	assert.Equal(t, "RefundSucceeded", EventRefundSucceeded)
}
