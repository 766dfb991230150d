package contracts

// Event is the default-contract message: a single text payload. The remote
// EventService echoes the same shape back on the response leg, so requests
// and responses share this type.
type Event struct {
	Payload string `json:"payload"`
}

// NewEvent creates an Event carrying the given payload.
func NewEvent(payload string) *Event {
	return &Event{Payload: payload}
}
