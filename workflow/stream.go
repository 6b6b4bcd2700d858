package workflow

import (
	"strings"
	"sync"
)

// StreamEventType identifies the kind of an output stream event.
type StreamEventType string

const (
	// EventNodeStatus announces that a node started running.
	EventNodeStatus StreamEventType = "nodeStatus"
	// EventAnswerDelta carries an incremental chunk of assistant text.
	EventAnswerDelta StreamEventType = "answerDelta"
	// EventInteractive carries the suspension payload of a paused run.
	EventInteractive StreamEventType = "interactive"
	// EventFinish closes the stream with the run's terminal state.
	EventFinish StreamEventType = "finish"
)

// StreamEvent is one item of the multiplexed output stream.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	NodeID   string          `json:"nodeId,omitempty"`
	NodeName string          `json:"nodeName,omitempty"`
	Text     string          `json:"text,omitempty"`
	Payload  any             `json:"payload,omitempty"`
}

// StreamHandler consumes ordered stream events. It is called from the
// goroutine that owns the head slot; implementations writing to a network
// response need no extra locking.
type StreamHandler func(event StreamEvent)

// ResponseStreamer multiplexes incremental output from concurrently
// executing nodes into one ordered stream. Slots are opened in readiness
// order; only the head slot's events flow through live, later slots buffer
// until every earlier slot has closed. The externally observable order is
// therefore readiness order, not wall-clock completion order.
type ResponseStreamer struct {
	mu      sync.Mutex
	handler StreamHandler
	stream  bool
	slots   []*StreamSlot
	head    int
	closed  bool

	buffered strings.Builder
}

// NewResponseStreamer creates a streamer. handler may be nil in
// non-streaming mode; deltas are then only accumulated into the buffered
// text.
func NewResponseStreamer(handler StreamHandler, stream bool) *ResponseStreamer {
	return &ResponseStreamer{handler: handler, stream: stream}
}

// Streaming reports whether live delta forwarding is on.
func (r *ResponseStreamer) Streaming() bool { return r.stream }

// OpenSlot registers a node in readiness order and returns its writer.
func (r *ResponseStreamer) OpenSlot(nodeID, nodeName string) *StreamSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &StreamSlot{streamer: r, nodeID: nodeID, nodeName: nodeName}
	r.slots = append(r.slots, s)
	s.push(StreamEvent{Type: EventNodeStatus, NodeID: nodeID, NodeName: nodeName})
	return s
}

// Emit sends an out-of-band event (interactive payloads, terminal errors)
// after all open slots have drained.
func (r *ResponseStreamer) Emit(ev StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
	r.emitLocked(ev)
}

// Close flushes every remaining buffered event in order and emits the
// finish event. The stream closes only on Completed, Suspended or Failed.
func (r *ResponseStreamer) Close(finish StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, s := range r.slots[r.head:] {
		s.closed = true
	}
	r.flushLocked()
	finish.Type = EventFinish
	r.emitLocked(finish)
	r.closed = true
}

// BufferedText returns all answer text seen so far, in stream order.
func (r *ResponseStreamer) BufferedText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffered.String()
}

func (r *ResponseStreamer) emitLocked(ev StreamEvent) {
	if ev.Type == EventAnswerDelta {
		r.buffered.WriteString(ev.Text)
	}
	if r.handler != nil && (r.stream || ev.Type == EventFinish || ev.Type == EventInteractive) {
		r.handler(ev)
	}
}

// flushLocked drains the head slot's buffer and advances past closed slots.
func (r *ResponseStreamer) flushLocked() {
	for r.head < len(r.slots) {
		s := r.slots[r.head]
		for _, ev := range s.pending {
			r.emitLocked(ev)
		}
		s.pending = nil
		s.live = true
		if !s.closed {
			return
		}
		r.head++
	}
}

// StreamSlot is the per-node writer handed to an executing node.
type StreamSlot struct {
	streamer *ResponseStreamer
	nodeID   string
	nodeName string
	pending  []StreamEvent
	live     bool
	closed   bool
}

// Delta forwards one chunk of assistant text.
func (s *StreamSlot) Delta(text string) {
	if text == "" {
		return
	}
	s.streamer.mu.Lock()
	defer s.streamer.mu.Unlock()
	s.push(StreamEvent{Type: EventAnswerDelta, NodeID: s.nodeID, Text: text})
}

// Close marks the slot done, allowing later slots to go live.
func (s *StreamSlot) Close() {
	s.streamer.mu.Lock()
	defer s.streamer.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.streamer.flushLocked()
}

// push assumes the streamer lock is held.
func (s *StreamSlot) push(ev StreamEvent) {
	if s.live {
		s.streamer.emitLocked(ev)
		return
	}
	s.streamer.flushLocked()
	if s.live {
		s.streamer.emitLocked(ev)
		return
	}
	s.pending = append(s.pending, ev)
}
