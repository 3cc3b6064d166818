package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/motorscan/motorscan/internal/normalize"
)

// JSONWriter writes output in JSON format. In stream mode each listing
// and failure is emitted as one JSON line while the run progresses.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteReport writes the complete run report.
func (j *JSONWriter) WriteReport(report *RunReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeValue(report)
}

// WriteListing writes a single listing in streaming mode.
func (j *JSONWriter) WriteListing(outcome string, listing *normalize.Listing) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeValue(StreamEvent{
		Type:    "listing",
		Outcome: outcome,
		Data:    listing,
	})
}

// WriteFailure writes a failure event in streaming mode.
func (j *JSONWriter) WriteFailure(failure *ScrapeFailure) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeValue(StreamEvent{
		Type: "failure",
		Data: failure,
	})
}

// writeValue marshals one value and writes it followed by a newline.
func (j *JSONWriter) writeValue(v interface{}) error {
	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return err
	}

	if _, err := j.writer.Write(data); err != nil {
		return err
	}

	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// StreamEvent wraps one streaming output line.
type StreamEvent struct {
	Type    string      `json:"type"`
	Outcome string      `json:"outcome,omitempty"`
	Data    interface{} `json:"data"`
}
