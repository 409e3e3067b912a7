package render

import (
	"fmt"
	"time"
)

// StorageKey is the object key for a job: "{principalID}-{epochMillis}.pdf".
func StorageKey(principalID string, startedAt time.Time) string {
	return fmt.Sprintf("%s-%d.pdf", principalID, startedAt.UnixMilli())
}
