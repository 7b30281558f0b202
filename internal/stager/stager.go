package stager

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tabpilot-mcp-server/internal/correlation"
)

// Envelope is the side-channel message format, identical in both directions.
type Envelope struct {
	Type                string  `json:"type"`
	RequestID           string  `json:"requestId,omitempty"`
	ResponseToRequestID string  `json:"responseToRequestId,omitempty"`
	Payload             Payload `json:"payload"`
}

// Payload carries the request action or the response verdict.
type Payload struct {
	Action     string `json:"action,omitempty"`
	FileURL    string `json:"fileUrl,omitempty"`
	Base64Data string `json:"base64Data,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	Success    bool   `json:"success,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	// TypeRequest and TypeResponse are the envelope type discriminators.
	TypeRequest  = "file_operation"
	TypeResponse = "file_operation_response"

	// DefaultTimeout bounds one staging round trip.
	DefaultTimeout = 30 * time.Second

	requestPrefix = "file_op"
	stageAction   = "stage_file"
)

// Outbound sends an envelope toward the side-channel peer.
type Outbound interface {
	Send(env Envelope) error
}

// Observer sees each staging round trip. The server wires it to the fact
// engine and the trace recorder; nil observers are skipped.
type Observer interface {
	StageRequested(id string, req StageRequest)
	StageResolved(id, path string, ok bool, elapsed time.Duration)
}

// StageRequest describes a file to materialize into a local path.
type StageRequest struct {
	RemoteURL    string
	InlineData   string
	FileNameHint string
}

type pendingRequest struct {
	id        string
	createdAt time.Time
	result    chan Envelope // buffered; one shot
}

// Stager correlates outbound file_operation requests with asynchronous
// responses under a timeout. One pending entry exists per in-flight call and
// is removed exactly once, on match, timeout, or send failure.
type Stager struct {
	out      Outbound
	timeout  time.Duration
	observer Observer
	mu       sync.Mutex
	pending  map[string]*pendingRequest
}

// New builds a stager over the given outbound sender. A non-positive timeout
// falls back to DefaultTimeout.
func New(out Outbound, timeout time.Duration) *Stager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Stager{
		out:     out,
		timeout: timeout,
		pending: make(map[string]*pendingRequest),
	}
}

// SetObserver installs a round-trip observer. Must be called before the
// first Stage.
func (s *Stager) SetObserver(o Observer) {
	s.observer = o
}

// Stage materializes a remote or inline file via one side-channel round trip.
// Single attempt only: a reported failure, a send failure, or a timeout all
// yield an empty path with a nil error. Callers decide whether an empty path
// is fatal.
func (s *Stager) Stage(ctx context.Context, req StageRequest) (string, error) {
	if req.RemoteURL == "" && req.InlineData == "" {
		return "", errors.New("stage: remote URL or inline data required")
	}

	id := correlation.NewRequestID(requestPrefix).String()
	p := &pendingRequest{
		id:        id,
		createdAt: time.Now(),
		result:    make(chan Envelope, 1),
	}

	s.mu.Lock()
	s.pending[id] = p
	s.mu.Unlock()
	defer s.remove(id)

	if s.observer != nil {
		s.observer.StageRequested(id, req)
	}

	env := Envelope{
		Type:      TypeRequest,
		RequestID: id,
		Payload: Payload{
			Action:     stageAction,
			FileURL:    req.RemoteURL,
			Base64Data: req.InlineData,
			FileName:   req.FileNameHint,
		},
	}
	if err := s.out.Send(env); err != nil {
		// The outbound channel itself rejected; short-circuit without waiting.
		log.Printf("stager: send failed for %s: %v", id, err)
		s.resolve(id, "", false, p.createdAt)
		return "", nil
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case resp := <-p.result:
		if !resp.Payload.Success {
			log.Printf("stager: %s reported failure: %s", id, resp.Payload.Error)
			s.resolve(id, "", false, p.createdAt)
			return "", nil
		}
		s.resolve(id, resp.Payload.FilePath, true, p.createdAt)
		return resp.Payload.FilePath, nil
	case <-timer.C:
		log.Printf("stager: %s timed out after %s", id, s.timeout)
		s.resolve(id, "", false, p.createdAt)
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Stager) resolve(id, path string, ok bool, startedAt time.Time) {
	if s.observer != nil {
		s.observer.StageResolved(id, path, ok, time.Since(startedAt))
	}
}

// Dispatch routes an inbound envelope to its pending request. Responses with
// unknown or malformed correlation ids are dropped with a log line.
func (s *Stager) Dispatch(env Envelope) {
	if env.Type != TypeResponse {
		return
	}
	if !correlation.Valid(env.ResponseToRequestID) {
		log.Printf("stager: dropping response with malformed id %q", env.ResponseToRequestID)
		return
	}

	s.mu.Lock()
	p, ok := s.pending[env.ResponseToRequestID]
	if ok {
		delete(s.pending, env.ResponseToRequestID)
	}
	s.mu.Unlock()

	if !ok {
		log.Printf("stager: no pending request for %q", env.ResponseToRequestID)
		return
	}
	p.result <- env
}

// PendingCount reports in-flight staging requests.
func (s *Stager) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Stager) remove(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}
