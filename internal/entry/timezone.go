// internal/entry/timezone.go
package entry

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without a zoneinfo tree
)

// Offsets outside UTC-12:00..UTC+14:00 are not used by any zone.
const (
	minOffsetMinutes = -12 * 60
	maxOffsetMinutes = 14 * 60
)

var ErrUnknownTimezone = errors.New("unknown timezone")

// ResolveLocation picks the zone the prompt date is shown in. An IANA name
// wins over an offset in minutes east of UTC. Neither given returns nil,
// which leaves the service clock's own zone in place.
func ResolveLocation(timezone string, offsetMinutes *int) (*time.Location, error) {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil || timezone == "Local" {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, timezone)
		}
		return loc, nil
	}
	if offsetMinutes == nil {
		return nil, nil
	}
	minutes := *offsetMinutes
	if minutes < minOffsetMinutes || minutes > maxOffsetMinutes {
		return nil, fmt.Errorf("%w: offset %d minutes", ErrUnknownTimezone, minutes)
	}
	return time.FixedZone("", minutes*60), nil
}
