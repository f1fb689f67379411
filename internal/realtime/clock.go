package realtime

import "time"

// Clock abstracts timer scheduling so backoff and polling are testable
// without real time.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
