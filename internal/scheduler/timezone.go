package scheduler

import (
	"fmt"
	"time"
)

// utcOffsetHours resolves an IANA timezone name to its UTC offset in
// hours at the given instant, so daylight-saving zones get the offset
// in force on the scheduling day.
func utcOffsetHours(name string, at time.Time) (float64, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return 0, fmt.Errorf("load location %q: %w", name, err)
	}
	_, offset := at.In(loc).Zone()
	return float64(offset) / 3600, nil
}
