package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"tabpilot-mcp-server/internal/mangle"
	"tabpilot-mcp-server/internal/stager"
)

// CommandSender issues one protocol command against an attached tab and
// returns the raw result. It is supplied by the surrounding application; the
// rod bridge implements it for live browsers.
type CommandSender interface {
	Send(ctx context.Context, tabID int, method string, params any) (json.RawMessage, error)
}

// FileStager materializes remote or inline payloads into local paths.
type FileStager interface {
	Stage(ctx context.Context, req stager.StageRequest) (string, error)
}

// FileSource selects exactly one way to provide the file.
type FileSource struct {
	LocalPath  string `json:"local_path,omitempty"`
	RemoteURL  string `json:"remote_url,omitempty"`
	InlineData string `json:"inline_data,omitempty"`
}

// UploadOptions tunes one upload operation.
type UploadOptions struct {
	FileNameHint  string `json:"file_name_hint,omitempty"`
	AllowMultiple bool   `json:"allow_multiple,omitempty"`
}

// UploadResult reports a completed upload. Diagnostics hold non-fatal
// failures, such as a change event that could not be dispatched.
type UploadResult struct {
	Files       []string `json:"files"`
	Selector    string   `json:"selector"`
	Count       int      `json:"count"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Uploader orchestrates the set-file-input workflow: stage the payload,
// acquire an exclusive session, resolve and validate the element, mutate it,
// and release the session on every path.
type Uploader struct {
	sessions *Manager
	sender   CommandSender
	files    FileStager
	engine   EngineSink
}

// NewUploader wires the workflow. The stager may be nil when no side channel
// is configured; local-path uploads still work.
func NewUploader(sessions *Manager, sender CommandSender, files FileStager, sink EngineSink) *Uploader {
	return &Uploader{
		sessions: sessions,
		sender:   sender,
		files:    files,
		engine:   sink,
	}
}

// UploadFile sets the given file on the file input matching selector in
// tabID. Exactly one of the source fields must be set. The session is
// released before any error is returned.
func (u *Uploader) UploadFile(ctx context.Context, tabID int, selector string, source FileSource, opts UploadOptions) (*UploadResult, error) {
	if err := validateUpload(selector, source); err != nil {
		return nil, err
	}

	localPath := source.LocalPath
	if localPath == "" {
		if u.files == nil {
			return nil, fmt.Errorf("%w: no side channel configured", ErrStaging)
		}
		staged, err := u.files.Stage(ctx, stager.StageRequest{
			RemoteURL:    source.RemoteURL,
			InlineData:   source.InlineData,
			FileNameHint: opts.FileNameHint,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStaging, err)
		}
		if staged == "" {
			return nil, fmt.Errorf("%w: side channel returned no path", ErrStaging)
		}
		localPath = staged
	}

	if _, err := u.sessions.Acquire(ctx, tabID); err != nil {
		u.emitOutcome(ctx, tabID, selector, false)
		return nil, err
	}
	defer u.sessions.Release(ctx, tabID)

	result, err := u.setInputFiles(ctx, tabID, selector, []string{localPath})
	u.emitOutcome(ctx, tabID, selector, err == nil)
	return result, err
}

func validateUpload(selector string, source FileSource) error {
	if strings.TrimSpace(selector) == "" {
		return fmt.Errorf("%w: selector is required", ErrValidation)
	}
	set := 0
	for _, v := range []string{source.LocalPath, source.RemoteURL, source.InlineData} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one of local_path, remote_url or inline_data must be set", ErrValidation)
	}
	return nil
}

// setInputFiles runs the protocol sequence against an already-acquired tab.
func (u *Uploader) setInputFiles(ctx context.Context, tabID int, selector string, files []string) (*UploadResult, error) {
	// Enabling a domain twice is not an error; these are idempotent.
	if _, err := u.send(ctx, tabID, "DOM.enable", nil); err != nil {
		return nil, err
	}
	if _, err := u.send(ctx, tabID, "Runtime.enable", nil); err != nil {
		return nil, err
	}

	raw, err := u.send(ctx, tabID, "DOM.getDocument", map[string]any{"depth": 0})
	if err != nil {
		return nil, err
	}
	var doc struct {
		Root struct {
			NodeID int `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Root.NodeID == 0 {
		return nil, fmt.Errorf("%w: document root unavailable", ErrProtocol)
	}

	raw, err = u.send(ctx, tabID, "DOM.querySelector", map[string]any{
		"nodeId":   doc.Root.NodeID,
		"selector": selector,
	})
	if err != nil {
		return nil, err
	}
	var query struct {
		NodeID int `json:"nodeId"`
	}
	if err := json.Unmarshal(raw, &query); err != nil || query.NodeID == 0 {
		return nil, fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}

	raw, err = u.send(ctx, tabID, "DOM.describeNode", map[string]any{"nodeId": query.NodeID})
	if err != nil {
		return nil, err
	}
	var described struct {
		Node struct {
			NodeName   string   `json:"nodeName"`
			Attributes []string `json:"attributes"`
		} `json:"node"`
	}
	if err := json.Unmarshal(raw, &described); err != nil {
		return nil, fmt.Errorf("%w: DOM.describeNode: malformed result", ErrProtocol)
	}
	if !isFileInput(described.Node.NodeName, described.Node.Attributes) {
		return nil, fmt.Errorf("%w: %q resolves to <%s>", ErrElementTypeMismatch, selector, strings.ToLower(described.Node.NodeName))
	}

	if _, err := u.send(ctx, tabID, "DOM.setFileInputFiles", map[string]any{
		"nodeId": query.NodeID,
		"files":  files,
	}); err != nil {
		return nil, err
	}

	result := &UploadResult{Files: files, Selector: selector, Count: len(files)}
	if diag := u.dispatchChangeEvent(ctx, tabID, selector); diag != "" {
		result.Diagnostics = append(result.Diagnostics, diag)
	}
	return result, nil
}

func (u *Uploader) send(ctx context.Context, tabID int, method string, params any) (json.RawMessage, error) {
	raw, err := u.sender.Send(ctx, tabID, method, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocol, method, err)
	}
	return raw, nil
}

// dispatchChangeEvent fires a synthetic change event in the page so
// page-side listeners observe the mutation. Best-effort: a failure is
// reported as a diagnostic, never as an error.
func (u *Uploader) dispatchChangeEvent(ctx context.Context, tabID int, selector string) string {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return fmt.Sprintf("change event skipped: unencodable selector: %v", err)
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, quoted)

	if _, err := u.sender.Send(ctx, tabID, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	}); err != nil {
		log.Printf("upload: change event dispatch failed for %q: %v", selector, err)
		return fmt.Sprintf("change event dispatch failed: %v", err)
	}
	return ""
}

// isFileInput checks the described node pairwise: an INPUT tag carrying a
// type=file attribute.
func isFileInput(nodeName string, attributes []string) bool {
	if !strings.EqualFold(nodeName, "input") {
		return false
	}
	for i := 0; i+1 < len(attributes); i += 2 {
		if strings.EqualFold(attributes[i], "type") && strings.EqualFold(attributes[i+1], "file") {
			return true
		}
	}
	return false
}

func (u *Uploader) emitOutcome(ctx context.Context, tabID int, selector string, ok bool) {
	if u.engine == nil {
		return
	}
	predicate := "upload_completed"
	if !ok {
		predicate = "upload_failed"
	}
	now := time.Now()
	err := u.engine.AddFacts(ctx, []mangle.Fact{{
		Predicate: predicate,
		Args:      []interface{}{tabID, selector, now.UnixMilli()},
		Timestamp: now,
	}})
	if err != nil {
		log.Printf("upload: %s fact error: %v", predicate, err)
	}
}
