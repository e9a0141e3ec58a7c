package model

// HistoryReader provides read-only access to tracked paths and their
// buffered events.
type HistoryReader interface {
	Files() []FileInfo
	History(path string) ([]Event, bool)
}

// ReadAPI is the unified read contract for read surfaces (HTTP and socket RPC).
type ReadAPI interface {
	HistoryReader
}
