package booking

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the format of the event window times.
const TimeLayout = "15:04"

var refEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewReference returns a human-shareable booking code such as
// "BK-20251220-7KQ2XM": the event date plus six random base32 characters.
func NewReference(eventDate time.Time) string {
	id := uuid.New()
	suffix := refEncoding.EncodeToString(id[:])[:6]
	return "BK-" + eventDate.Format("20060102") + "-" + strings.ToUpper(suffix)
}
