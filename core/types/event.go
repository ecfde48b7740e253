package types

// Event is the flat record the engine emits after a committed operation. The
// type names the operation and the attributes carry its string-encoded
// parameters.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
