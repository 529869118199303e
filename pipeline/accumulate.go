package pipeline

// accumulator buffers and potentially merges frames before they reach
// the fan-out/mapping stages. v1 ships the identity pass-through: every
// manifest observed in the wild emits frames that are already
// self-contained JSON objects, so stateful merging (e.g. coalescing a
// split multi-line tool-call payload) is not required. The interface is
// kept so a manifest author who needs stateful buffering for a new
// provider shape can add one without touching the rest of the pipeline.
type accumulator interface {
	// push returns the frames ready to emit now; most implementations
	// return exactly [frame]. A stateful implementation may return no
	// frames (still buffering) or more than one (flushing prior state).
	push(frame Frame) []Frame
	// flush returns any frames the accumulator was still holding once
	// the underlying decoder reaches EOF.
	flush() []Frame
}

type identityAccumulator struct{}

func newAccumulator() accumulator { return identityAccumulator{} }

func (identityAccumulator) push(frame Frame) []Frame { return []Frame{frame} }
func (identityAccumulator) flush() []Frame           { return nil }
