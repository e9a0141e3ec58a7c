package model

import "time"

// Shared defaults used by the engine and the CLI binary.
const (
	DefaultHistoryLines = 2000
	DefaultExpire       = 10 * time.Minute
	DefaultPort         = 8888
	DefaultIndex        = "index.html"
	DefaultPollInterval = time.Second
)
