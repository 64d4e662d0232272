package orders

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newOrderNumber renders yyyyMMdd-NNNN with a random four digit suffix.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s-%04d", now.Format("20060102"), 1000+rand.IntN(9000))
}

// newShipmentNumber renders SHP-<unix millis>-<4 hex>.
func newShipmentNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("SHP-%d-%s", now.UnixMilli(), suffix)
}
