package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "data/traces"
)

// Event is a single record in the workflow flight recorder: one protocol
// step, side-channel envelope or session transition.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	TabID     int         `json:"tab_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Recorder writes rotating JSONL traces for post-mortem debugging of upload
// workflows and stager exchanges.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
}

// NewRecorder creates a recorder writing under basePath, ensuring the
// directory exists.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath}, nil
}

// Start opens a new trace file, rotating old ones so at most
// MaxRotatedFiles remain.
func (r *Recorder) Start(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%d.jsonl", label, time.Now().UnixMilli())
	path := filepath.Join(r.basePath, filename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Step records a workflow step against a tab. A recorder that was never
// started drops events silently.
func (r *Recorder) Step(eventType string, tabID int, data interface{}) {
	r.record(Event{Type: eventType, TabID: tabID, Data: data})
}

// Exchange records a side-channel request or response keyed by its
// correlation id.
func (r *Recorder) Exchange(eventType, requestID string, data interface{}) {
	r.record(Event{Type: eventType, RequestID: requestID, Data: data})
}

func (r *Recorder) record(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	evt.Timestamp = time.Now()
	_ = r.encoder.Encode(evt)
}

// rotate keeps only the newest MaxRotatedFiles traces.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	var traces []struct {
		Name string
		Time time.Time
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Time.After(traces[j].Time)
	})

	if len(traces) >= MaxRotatedFiles {
		// Keep N-1 to make room for the new one.
		keep := MaxRotatedFiles - 1
		for i := keep; i < len(traces); i++ {
			_ = os.Remove(filepath.Join(r.basePath, traces[i].Name))
		}
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
