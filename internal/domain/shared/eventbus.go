package shared

import "context"

// EventHandler reacts to committed ledger events. A handler error is logged
// by the bus and never undoes the transaction that raised the event.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the subscribed types; nil subscribes to every event
	EventTypes() []string
}

// EventPublisher receives the events of a transaction after it commits
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}
