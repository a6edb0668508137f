package port

import "context"

// Message is an outbound notification to a single recipient address.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages to users out of band (email or SMS). The core
// treats delivery as opaque.
type Notifier interface {
	Deliver(ctx context.Context, msg Message) error
}
