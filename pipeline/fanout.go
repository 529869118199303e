package pipeline

import "github.com/hiddenpath/ai-protocol-go/pipeline/jsonpath"

// candidateFrame pairs a Frame with the candidate index it belongs to,
// for providers that return more than one completion (n>1) multiplexed
// onto a single stream.
type candidateFrame struct {
	Frame Frame
	Index int
}

// fanout tags each Frame with the candidate index read from
// candidate_id_path when fan-out is enabled. It always yields exactly one
// candidateFrame per Frame; an array frame is not split into one frame
// per element. Providers without multi-candidate support always resolve
// to index 0.
type fanout struct {
	idSegs []jsonpath.Segment
	active bool
}

func newFanout(candidateIDPath string, enabled bool) (*fanout, error) {
	f := &fanout{active: enabled}
	if !enabled || candidateIDPath == "" {
		return f, nil
	}
	segs, err := jsonpath.Parse(candidateIDPath)
	if err != nil {
		return nil, err
	}
	f.idSegs = segs
	return f, nil
}

func (f *fanout) split(frame Frame) []candidateFrame {
	if f == nil || !f.active || len(f.idSegs) == 0 {
		return []candidateFrame{{Frame: frame, Index: 0}}
	}
	v, ok := jsonpath.GetSegments(frame.Decoded, f.idSegs)
	if !ok {
		return []candidateFrame{{Frame: frame, Index: 0}}
	}
	idx := 0
	switch n := v.(type) {
	case float64:
		idx = int(n)
	case int:
		idx = n
	}
	return []candidateFrame{{Frame: frame, Index: idx}}
}
