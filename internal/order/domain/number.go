package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewNumber generates an order number of the form ORD-XXXXXXXX. Uniqueness is
// enforced by the store; callers retry on collision.
func NewNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}
