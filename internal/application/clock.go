package application

import "time"

// Clock is injected into services so tests can pin timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock pakai time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
