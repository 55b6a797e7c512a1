package broadcast

import "context"

// Lifecycle event names carried on channel-scoped topics.
const (
	EventCallStarted        = "call_started"
	EventParticipantJoined  = "participant_joined"
	EventParticipantLeft    = "participant_left"
	EventParticipantUpdated = "participant_updated"
	EventCallEnded          = "call_ended"
	EventHuddleStarted      = "huddle_started"
	EventHuddleEnded        = "huddle_ended"
)

// CallTopic is the per-channel topic for call lifecycle events.
func CallTopic(channelID string) string { return "call:" + channelID }

// HuddleTopic is the per-channel topic for huddle lifecycle events.
func HuddleTopic(channelID string) string { return "huddle:" + channelID }

// Event is a typed lifecycle event published for downstream relay.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Sink publishes lifecycle events to a topic.
//
// Delivery is at-most-once and fire-and-forget: sinks do not retry or persist
// missed events. Consumers reconcile gaps via the coordinators' read
// operations, not via the sink.
type Sink interface {
	Publish(ctx context.Context, topic string, ev Event) error
}
