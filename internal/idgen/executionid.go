package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateExecutionID allocates a delegate-execution id combining a
// millisecond-precision wall-clock component, the host process id, and a
// random suffix. The random suffix is a UUIDv4
// fragment rather than a counter so concurrent hosts never collide
// without coordinating state.
func GenerateExecutionID(timestamp time.Time, pid int) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("exec-%d-%d-%s", timestamp.UnixMilli(), pid, suffix)
}
