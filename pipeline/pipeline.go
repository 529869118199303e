package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
)

// Stream is a pull-based iterator over one HTTP response body, producing
// unified message.Events. Call Next to advance, Event to read the
// current value, and Err after Next returns false to distinguish a
// clean end from a decode failure. Exactly one message.StreamEnd is
// produced, always the last event (spec.md §4.2).
type Stream struct {
	dec decoder
	sel *selector
	acc accumulator
	fo  *fanout

	newMapperFn func() mapper
	mappers     map[int]mapper

	queue  []message.Event
	cur    message.Event
	err    error
	done   bool
	replay *message.Event

	sawStreamEnd bool

	closer    io.Closer
	onClose   func()
	closeOnce sync.Once
}

// New builds a Stream over r using the decode/select/fan-out/map
// configuration declared on m's Streaming block. m must declare
// streaming capability and a decoder; Validate enforces this before a
// manifest reaches the client executor.
func New(r io.Reader, m *protocol.Manifest) (*Stream, error) {
	if m.Streaming == nil || m.Streaming.Decoder == nil {
		return nil, fmt.Errorf("pipeline: manifest %q has no streaming configuration", m.ID)
	}
	s := m.Streaming

	dec, err := newDecoder(s.Decoder.Format, r, s.Decoder.DoneSignal)
	if err != nil {
		return nil, err
	}
	sel, err := newSelector(s.FrameSelector)
	if err != nil {
		return nil, err
	}
	candidateIDPath := ""
	fanOutEnabled := false
	if s.Candidate != nil {
		candidateIDPath = s.Candidate.CandidateIDPath
		fanOutEnabled = s.Candidate.FanOut
	}
	fo, err := newFanout(candidateIDPath, fanOutEnabled)
	if err != nil {
		return nil, err
	}

	stream := &Stream{
		dec:         dec,
		sel:         sel,
		acc:         newAccumulator(),
		fo:          fo,
		newMapperFn: func() mapper { mp, _ := newMapper(s); return mp },
		mappers:     make(map[int]mapper),
	}
	if c, ok := r.(io.Closer); ok {
		stream.closer = c
	}
	return stream, nil
}

// OnClose registers fn to run exactly once, either when the stream
// reaches a terminal state on its own (clean end or decode error) or
// when Close is called explicitly. The client executor uses this to
// release the inflight permit it acquired for this attempt.
func (s *Stream) OnClose(fn func()) {
	s.onClose = fn
}

// Close releases the stream's underlying resources immediately: the
// response body, if the reader passed to New was an io.Closer, and any
// OnClose hook. Safe to call more than once and safe to call after the
// stream has already reached its natural end.
func (s *Stream) Close() error {
	s.release()
	return nil
}

func (s *Stream) release() {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closer.Close()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Prime advances the stream exactly like Next, except the result is
// remembered rather than exposed: the following call to Next replays
// whatever Prime observed instead of decoding further. This lets a
// caller peek at the first event (or the first decode error) before
// deciding whether to commit to this stream at all.
func (s *Stream) Prime() bool {
	ok := s.Next()
	if ok {
		ev := s.cur
		s.replay = &ev
	}
	return ok
}

// Next advances the stream, returning false when the stream has ended
// (check Err to distinguish clean end-of-stream from a decode error)
// or true if Event now holds a value.
func (s *Stream) Next() bool {
	if s.replay != nil {
		s.cur, s.replay = *s.replay, nil
		return true
	}
	if s.done {
		return false
	}
	for {
		if len(s.queue) > 0 {
			s.cur, s.queue = s.queue[0], s.queue[1:]
			if _, ok := s.cur.(message.StreamEnd); ok {
				if s.sawStreamEnd {
					continue // de-duplicate: exactly one StreamEnd per stream
				}
				s.sawStreamEnd = true
				s.done = true
				s.release()
			}
			return true
		}

		frame, err := s.dec.next()
		if err == io.EOF {
			s.finalizeAtEOF()
			if len(s.queue) > 0 {
				continue
			}
			s.done = true
			s.release()
			return false
		}
		if err != nil {
			s.err = err
			s.done = true
			s.release()
			return false
		}
		if !s.sel.selects(frame) {
			continue
		}
		for _, accFrame := range s.acc.push(frame) {
			s.queue = append(s.queue, s.mapFrame(accFrame)...)
		}
	}
}

func (s *Stream) finalizeAtEOF() {
	for _, accFrame := range s.acc.flush() {
		s.queue = append(s.queue, s.mapFrame(accFrame)...)
	}
	if !s.sawStreamEnd {
		s.queue = append(s.queue, message.StreamEnd{})
	}
}

func (s *Stream) mapFrame(frame Frame) []message.Event {
	var events []message.Event
	for _, cf := range s.fo.split(frame) {
		mp, ok := s.mappers[cf.Index]
		if !ok {
			mp = s.newMapperFn()
			s.mappers[cf.Index] = mp
		}
		events = append(events, mp.mapFrame(cf)...)
	}
	return events
}

// Event returns the event most recently produced by Next.
func (s *Stream) Event() message.Event { return s.cur }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }
