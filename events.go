package resilience

import "sync"

// Publisher is the external collaborator the streaming consumer (out of
// scope for this library) implements to relay payloads to a channel.
type Publisher interface {
	Publish(channel string, payload any) error
}

// Subscriber is the external collaborator a streaming consumer implements
// to receive payloads published to a channel.
type Subscriber interface {
	Subscribe(channel string) (<-chan any, error)
}

// Topic names for the workflow engine's internal event stream.
const (
	TopicRecoveryStarted   = "recovery.started"
	TopicRecoveryCompleted = "recovery.completed"
)

// RecoveryStartedPayload is emitted on TopicRecoveryStarted.
type RecoveryStartedPayload struct {
	WorkflowID  string
	ExecutionID string
}

// RecoveryCompletedPayload is emitted on TopicRecoveryCompleted.
type RecoveryCompletedPayload struct {
	WorkflowID  string
	ExecutionID string
	Status      ExecutionStatus
}

// EventHandler receives a single payload published to a topic.
type EventHandler func(payload any)

// eventEmitter is the workflow engine's internal fan-out: fire-and-forget,
// in-process, used only for recovery.started/recovery.completed. It is
// intentionally simpler than an external Publisher/Subscriber pair — those
// are the out-of-scope collaborator interfaces a caller may bridge this
// emitter into.
type eventEmitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func newEventEmitter() *eventEmitter {
	return &eventEmitter{handlers: make(map[string][]EventHandler)}
}

// On registers handler for topic.
func (e *eventEmitter) On(topic string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[topic] = append(e.handlers[topic], handler)
}

// Emit invokes every handler registered for topic, each in its own
// goroutine so a slow or misbehaving handler never blocks the workflow
// engine.
func (e *eventEmitter) Emit(topic string, payload any) {
	e.mu.RLock()
	handlers := append([]EventHandler{}, e.handlers[topic]...)
	e.mu.RUnlock()

	for _, h := range handlers {
		go h(payload)
	}
}
