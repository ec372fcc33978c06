package tracker

import "time"

// Consumer is the name the tracker's outbox cursor is stored under.
const Consumer = "tracker"

const GlobalLimitWindowSize = 50

const (
	DefaultInterval      = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
)
