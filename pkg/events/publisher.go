package events

import "context"

// EventPublisher publishes registration change events.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *RegistrationChangedEvent) error
}

// NoOpPublisher discards events.
type NoOpPublisher struct{}

// PublishChanged is a no-op.
func (p *NoOpPublisher) PublishChanged(_ context.Context, _ *RegistrationChangedEvent) error {
	return nil
}

// CallbackPublisher hands each event to a function, such as a logger or an
// in-process hook.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RegistrationChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RegistrationChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChanged calls the callback.
func (p *CallbackPublisher) PublishChanged(ctx context.Context, event *RegistrationChangedEvent) error {
	return p.callback(ctx, event)
}
