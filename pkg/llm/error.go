// Package llm provides the wire representations of chat completion API requests
// and responses exchanged between the chat client, the proxy and the upstream API.
package llm

// ErrorResponse represents an error body returned by the proxy or the upstream API.
type ErrorResponse struct {
	Error string `json:"error"`
}
