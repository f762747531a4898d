package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewClientOrderID builds a client order id in the {prefix}_{timestamp}_{random}
// format. The pair (client order id, exchange) is the idempotency key for
// order submission, so the random suffix keeps ids unique across concurrent
// callers that share a millisecond.
func NewClientOrderID(prefix string) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = "AT"
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), random)
}
