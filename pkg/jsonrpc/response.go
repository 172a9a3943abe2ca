package jsonrpc

// Response is the reply to a single Request. Exactly one of Result and
// Error should be populated.
type Response struct {
	Message
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}
