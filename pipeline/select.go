package pipeline

import "github.com/hiddenpath/ai-protocol-go/pipeline/jsonpath"

// selector decides whether a decoded Frame should continue through the
// pipeline. Frames a provider sends that carry no unified-event content
// (pings, comments re-decoded as empty objects) are dropped here rather
// than reaching the mapper.
type selector struct {
	cond *jsonpath.Condition
}

func newSelector(expr string) (*selector, error) {
	cond, err := jsonpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &selector{cond: cond}, nil
}

func (s *selector) selects(frame Frame) bool {
	if s == nil || s.cond == nil {
		return true
	}
	return s.cond.Eval(frame.Decoded)
}
