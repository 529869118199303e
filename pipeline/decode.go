// Package pipeline implements the streaming response pipeline described
// in spec.md §4.2: decode raw bytes into JSON frames, select the frames
// that matter, accumulate stateful fragments, fan out multi-candidate
// responses, and map each resulting frame onto a unified message.Event.
// A Stream is a pull-based iterator over one HTTP response body; it
// guarantees exactly one terminal message.StreamEnd, always last.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Frame is one decoded JSON object pulled off the wire, together with
// its raw bytes for mappers that need to re-parse with a different
// target type.
type Frame struct {
	Raw     []byte
	Decoded any
	EventID string // SSE "event:" field, when present
}

// decoder turns a response body into a sequence of Frames. Each manifest
// declares exactly one decoder format: sse or ndjson.
type decoder interface {
	// next returns the next frame, io.EOF when the stream is exhausted
	// cleanly, or another error on malformed input.
	next() (Frame, error)
}

// newDecoder returns the decoder named by format ("sse" or "ndjson").
func newDecoder(format string, r io.Reader, doneSignal string) (decoder, error) {
	switch format {
	case "sse", "":
		return newSSEDecoder(r, doneSignal), nil
	case "ndjson":
		return newNDJSONDecoder(r), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown decoder format %q", format)
	}
}

// sseDecoder implements the text/event-stream framing: lines starting
// "data: " accumulate into one event, terminated by a blank line. A
// "done" sentinel payload (by default "[DONE]") ends the stream.
type sseDecoder struct {
	scanner    *bufio.Scanner
	doneSignal string
}

func newSSEDecoder(r io.Reader, doneSignal string) *sseDecoder {
	if doneSignal == "" {
		doneSignal = "[DONE]"
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &sseDecoder{scanner: sc, doneSignal: doneSignal}
}

func (d *sseDecoder) next() (Frame, error) {
	var dataLines []string
	var eventID string
	for d.scanner.Scan() {
		line := d.scanner.Text()
		switch {
		case line == "":
			if len(dataLines) == 0 {
				continue
			}
			payload := strings.Join(dataLines, "\n")
			if payload == d.doneSignal {
				return Frame{}, io.EOF
			}
			var decoded any
			if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
				return Frame{}, fmt.Errorf("pipeline: decoding sse frame: %w", err)
			}
			return Frame{Raw: []byte(payload), Decoded: decoded, EventID: eventID}, nil
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			eventID = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, ":"):
			// comment/keep-alive line, ignored
		default:
			// unrecognized field, ignored per the SSE spec
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("pipeline: reading sse stream: %w", err)
	}
	if len(dataLines) > 0 {
		payload := strings.Join(dataLines, "\n")
		if payload != d.doneSignal {
			var decoded any
			if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
				return Frame{Raw: []byte(payload), Decoded: decoded, EventID: eventID}, nil
			}
		}
	}
	return Frame{}, io.EOF
}

// ndjsonDecoder implements newline-delimited JSON framing: one JSON
// object per line.
type ndjsonDecoder struct {
	scanner *bufio.Scanner
}

func newNDJSONDecoder(r io.Reader) *ndjsonDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &ndjsonDecoder{scanner: sc}
}

func (d *ndjsonDecoder) next() (Frame, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			return Frame{}, fmt.Errorf("pipeline: decoding ndjson line: %w", err)
		}
		return Frame{Raw: []byte(line), Decoded: decoded}, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("pipeline: reading ndjson stream: %w", err)
	}
	return Frame{}, io.EOF
}
