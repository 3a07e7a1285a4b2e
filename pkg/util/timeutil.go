package util

import "time"

// NowUTC is the wall clock used for persisted timestamps. Stores keep it
// behind a func field so tests can pin time.
func NowUTC() time.Time {
	return time.Now().UTC()
}
