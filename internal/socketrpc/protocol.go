package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes dashboard.Dashboard over a Unix domain socket.
//
//   Method    Params                                   Result
//   ───────   ──────────────────────────────────────   ──────────────────
//   Recent    {N: int}                                 []ErrorRecord
//   Search    {Text, From, To: string, Limit: int}     []ErrorRecord
//   GetByID   {ID: int64}                              {Record, Found}
//   Buckets   {Window, Bucket: time.Duration}          []Bucket
//   Delta     {Lookback: time.Duration}                aggregate.Delta
//   Explain   {ID: int64}                              explain.Result
//
// Zero durations and limits select the server defaults. Recent, Buckets and
// Delta accept empty or null params.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)
//   -32001  Record not found (Explain)
//   -32002  Explanation service not configured

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
	codeNotFound       = -32001
	codeNotConfigured  = -32002
)

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

// getByIDResult carries the found flag that a bare record cannot.
type getByIDResult struct {
	Record json.RawMessage `json:"record,omitempty"`
	Found  bool            `json:"found"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/errwatch/errwatch.sock, falling back to
// ~/.local/state/errwatch/errwatch.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "errwatch", "errwatch.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/errwatch.sock"
	}
	return filepath.Join(home, ".local", "state", "errwatch", "errwatch.sock")
}
