package payments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewReference builds a merchant reference such as RENT-42-1A2B3C4D. The
// random suffix keeps references unique across retries of the same payment.
func NewReference(prefix string, paymentID int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, paymentID, strings.ToUpper(suffix))
}
