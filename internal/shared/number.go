package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewDocumentNumber returns a human-readable, collision-resistant document
// number such as "PO-20260901-8F3A2B1C". Callers pass the short document
// prefix; the suffix comes from a random UUID so numbers stay unique
// without a database round trip.
func NewDocumentNumber(prefix string) string {
	id := uuid.New()
	suffix := strings.ToUpper(hexPrefix(id))
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), suffix)
}

func hexPrefix(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
