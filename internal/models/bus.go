package models

import "log/slog"

// Bus is the central data structure passed along the processor chain for a single callback.
type Bus struct {
	Response Response

	EventType string
	Header    *EventHeader
	Event     any

	// Body is the raw request body as received; Payload is the decrypted JSON event.
	Body    []byte
	Payload []byte
	Headers map[string]string

	// Handled is set once a processor has produced the final response for the event.
	Handled bool
}

// LogValue implements slog.LogValuer.
func (b *Bus) LogValue() slog.Value {
	if b == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{slog.String("eventType", b.EventType)}
	if b.Header != nil {
		attrs = append(attrs, slog.String("eventID", b.Header.EventID))
	}
	return slog.GroupValue(attrs...)
}
