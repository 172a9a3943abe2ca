package jsonrpc

// Request is an incoming JSON-RPC call. Params stays untyped until the
// method handler knows which parameter struct to decode into.
type Request struct {
	Message
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}
