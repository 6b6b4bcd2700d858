package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectStreamer(stream bool) (*ResponseStreamer, *[]StreamEvent) {
	events := &[]StreamEvent{}
	r := NewResponseStreamer(func(ev StreamEvent) {
		*events = append(*events, ev)
	}, stream)
	return r, events
}

func answerTexts(events []StreamEvent) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == EventAnswerDelta {
			out = append(out, ev.Text)
		}
	}
	return out
}

func TestStreamerOrdersSlotsByReadiness(t *testing.T) {
	r, events := collectStreamer(true)

	a := r.OpenSlot("a", "a")
	b := r.OpenSlot("b", "b")
	c := r.OpenSlot("c", "c")

	// Completion order is c, b, a; output order must stay a, b, c.
	c.Delta("C")
	c.Close()
	b.Delta("B")
	b.Close()
	a.Delta("A1")
	a.Delta("A2")
	a.Close()
	r.Close(StreamEvent{})

	assert.Equal(t, []string{"A1", "A2", "B", "C"}, answerTexts(*events))
	assert.Equal(t, "A1A2BC", r.BufferedText())
}

func TestStreamerHeadSlotIsLive(t *testing.T) {
	r, events := collectStreamer(true)

	a := r.OpenSlot("a", "a")
	b := r.OpenSlot("b", "b")

	a.Delta("A")
	assert.Equal(t, []string{"A"}, answerTexts(*events))

	// The later slot buffers until the head closes.
	b.Delta("B")
	assert.Equal(t, []string{"A"}, answerTexts(*events))

	a.Close()
	assert.Equal(t, []string{"A", "B"}, answerTexts(*events))
	b.Close()
}

func TestStreamerNonStreamingBuffersOnly(t *testing.T) {
	r, events := collectStreamer(false)

	s := r.OpenSlot("a", "a")
	s.Delta("hello")
	s.Close()
	r.Close(StreamEvent{})

	// Only the finish event reaches the handler.
	require.Len(t, *events, 1)
	assert.Equal(t, EventFinish, (*events)[0].Type)
	assert.Equal(t, "hello", r.BufferedText())
}

func TestStreamerInteractiveAlwaysDelivered(t *testing.T) {
	r, events := collectStreamer(false)
	r.Emit(StreamEvent{Type: EventInteractive, NodeID: "input"})
	r.Close(StreamEvent{})

	require.Len(t, *events, 2)
	assert.Equal(t, EventInteractive, (*events)[0].Type)
	assert.Equal(t, EventFinish, (*events)[1].Type)
}

func TestStreamerCloseIsIdempotent(t *testing.T) {
	r, events := collectStreamer(true)
	r.Close(StreamEvent{})
	r.Close(StreamEvent{})

	count := 0
	for _, ev := range *events {
		if ev.Type == EventFinish {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestStreamerEmitsNodeStatus(t *testing.T) {
	r, events := collectStreamer(true)
	s := r.OpenSlot("a", "node a")
	s.Close()
	r.Close(StreamEvent{})

	require.NotEmpty(t, *events)
	assert.Equal(t, EventNodeStatus, (*events)[0].Type)
	assert.Equal(t, "a", (*events)[0].NodeID)
	assert.Equal(t, "node a", (*events)[0].NodeName)
}
