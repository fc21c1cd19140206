package measure

import "time"

// Clock supplies the time used by virtual devices to decide when a
// measurement is ready.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
