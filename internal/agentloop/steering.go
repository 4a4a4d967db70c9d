package agentloop

import (
	"context"
	"sync"
)

// SteeringMessage is a message injected mid-turn by the host while the loop
// is between tool calls. When SkipRemainingTools is set, every tool call
// still pending in the current batch is answered with the fixed
// SkippedToolResultPlaceholder instead of being executed.
type SteeringMessage struct {
	Content            string
	SkipRemainingTools bool
}

// FollowUpMessage is a message injected by the host after the loop has
// already reached a natural stop (no pending tool calls), restarting the
// outer loop for one more turn.
type FollowUpMessage struct {
	Content string
}

// SkippedToolResultPlaceholder is the exact content a tool call's result is
// given when steering short-circuits it. The text is visible to the model
// by design, so it understands why the call it made produced no output.
const SkippedToolResultPlaceholder = "Tool call skipped due to steering message"

// FollowUpMode controls how many queued follow-up messages are drained into
// the conversation at once when the loop reaches a natural stop.
type FollowUpMode int

const (
	// FollowUpOneAtATime drains a single queued follow-up per stop, leaving
	// the rest queued for the next stop.
	FollowUpOneAtATime FollowUpMode = iota
	// FollowUpAll drains every queued follow-up into a single turn.
	FollowUpAll
)

// SteeringQueue is the mutex-guarded mailbox a host posts steering and
// follow-up messages into from a goroutine outside the loop's own; the loop
// drains it at its two await points (between tool calls, and at a natural
// stop) rather than polling continuously.
type SteeringQueue struct {
	mu        sync.Mutex
	steering  []SteeringMessage
	followUps []FollowUpMessage
}

// NewSteeringQueue returns an empty queue.
func NewSteeringQueue() *SteeringQueue {
	return &SteeringQueue{}
}

// PushSteering enqueues a steering message for the loop's next check.
func (q *SteeringQueue) PushSteering(m SteeringMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.steering = append(q.steering, m)
}

// PushFollowUp enqueues a follow-up message for the loop's next stop.
func (q *SteeringQueue) PushFollowUp(m FollowUpMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.followUps = append(q.followUps, m)
}

// DrainSteering removes and returns every queued steering message.
func (q *SteeringQueue) DrainSteering() []SteeringMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.steering) == 0 {
		return nil
	}
	out := q.steering
	q.steering = nil
	return out
}

// DrainFollowUps removes and returns queued follow-up messages according to
// mode: FollowUpOneAtATime takes just the oldest entry, FollowUpAll takes
// every queued entry.
func (q *SteeringQueue) DrainFollowUps(mode FollowUpMode) []FollowUpMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.followUps) == 0 {
		return nil
	}
	if mode == FollowUpOneAtATime {
		first := q.followUps[0]
		q.followUps = q.followUps[1:]
		return []FollowUpMessage{first}
	}
	out := q.followUps
	q.followUps = nil
	return out
}

type steeringQueueKey struct{}

// WithSteeringQueue attaches q to ctx for the loop to discover via
// SteeringQueueFromContext.
func WithSteeringQueue(ctx context.Context, q *SteeringQueue) context.Context {
	return context.WithValue(ctx, steeringQueueKey{}, q)
}

// SteeringQueueFromContext retrieves a queue attached by WithSteeringQueue,
// or nil if none was attached — a run with no queue simply never has
// steering or follow-up messages to drain.
func SteeringQueueFromContext(ctx context.Context) *SteeringQueue {
	q, _ := ctx.Value(steeringQueueKey{}).(*SteeringQueue)
	return q
}
