package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.ReadAPI over a Unix domain socket so
// local tools can inspect the tracker without the websocket stream.
//
//   Method        Params                                                       Result
//   ──────────    ──────────────────────────────────────────────────────────   ─────────────────
//   ListFiles     (none)                                                       []FileInfo
//   History       {Path: string, Filter: string, CaseInsensitive: bool,        []Event
//                  Advanced: bool, Limit: int}
//
// History applies Filter the same way the browser does and returns the
// matching events oldest first, with highlight ranges filled in. Limit > 0
// keeps only the newest Limit matches.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including an invalid filter)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (unknown path)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// HistoryParams are the parameters of the History method.
type HistoryParams struct {
	Path            string
	Filter          string
	CaseInsensitive bool
	Advanced        bool
	Limit           int
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/tailview/tailview.sock, falling back to
// ~/.local/state/tailview/tailview.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "tailview", "tailview.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tailview.sock")
	}
	return filepath.Join(home, ".local", "state", "tailview", "tailview.sock")
}
