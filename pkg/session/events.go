package session

import "context"

// EventType enumerates the observable transitions each sub-machine
// emits, mirroring the teacher's OrchestratorEvent pattern so a UI
// shell can subscribe to one channel per machine.
type EventType int

const (
	EventRecording EventType = iota
	EventTranscribing
	EventGenerating
	EventComplete
	EventError
	EventCancelled
	EventTokenChunk
	EventListening
	EventProcessing
	EventInsight
)

// Event is one emitted transition or data chunk.
type Event struct {
	Type EventType
	Data interface{}
}

// emitter is embedded by each sub-machine; it owns a buffered,
// non-blocking event channel exactly like managed_stream.go's
// ms.events, so a slow or absent consumer never stalls the pipeline.
type emitter struct {
	events chan Event
	ctx    context.Context
}

func newEmitter(ctx context.Context) emitter {
	return emitter{events: make(chan Event, 256), ctx: ctx}
}

func (e *emitter) emit(t EventType, data interface{}) {
	select {
	case <-e.ctx.Done():
		return
	default:
	}
	select {
	case e.events <- Event{Type: t, Data: data}:
	default:
	}
}

// Events returns the sub-machine's event stream.
func (e *emitter) Events() <-chan Event {
	return e.events
}
