package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"tabpilot-mcp-server/internal/stager"
)

// fakeSender replays canned results per protocol method and records the call
// order. Methods without a script entry return an empty object.
type fakeSender struct {
	results map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeSender) Send(ctx context.Context, tabID int, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, method)
	if err := f.errs[method]; err != nil {
		return nil, err
	}
	if res, ok := f.results[method]; ok {
		return json.RawMessage(res), nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeSender) called(method string) bool {
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

// happyPathResults scripts the full resolve-and-set sequence against a
// well-formed file input.
func happyPathResults() map[string]string {
	return map[string]string{
		"DOM.getDocument":   `{"root":{"nodeId":1}}`,
		"DOM.querySelector": `{"nodeId":44}`,
		"DOM.describeNode":  `{"node":{"nodeName":"INPUT","attributes":["type","file","id","avatar"]}}`,
	}
}

type fakeStager struct {
	path string
	err  error
	reqs []stager.StageRequest
}

func (f *fakeStager) Stage(ctx context.Context, req stager.StageRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.path, f.err
}

func newTestUploader(sender *fakeSender, files FileStager) (*Uploader, *fakeAttacher) {
	fa := &fakeAttacher{}
	m := NewManager(fa, NewRegistry(), nil)
	return NewUploader(m, sender, files, nil), fa
}

func TestUploadFileHappyPath(t *testing.T) {
	sender := &fakeSender{results: happyPathResults()}
	u, fa := newTestUploader(sender, nil)

	res, err := u.UploadFile(context.Background(), 1, "#avatar", FileSource{LocalPath: "/tmp/a.png"}, UploadOptions{})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if res.Count != 1 || len(res.Files) != 1 || res.Files[0] != "/tmp/a.png" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("clean run produced diagnostics: %v", res.Diagnostics)
	}

	want := []string{
		"DOM.enable", "Runtime.enable", "DOM.getDocument",
		"DOM.querySelector", "DOM.describeNode", "DOM.setFileInputFiles",
		"Runtime.evaluate",
	}
	if len(sender.calls) != len(want) {
		t.Fatalf("call sequence %v, want %v", sender.calls, want)
	}
	for i, method := range want {
		if sender.calls[i] != method {
			t.Errorf("call %d = %s, want %s", i, sender.calls[i], method)
		}
	}

	attaches, detaches := fa.counts()
	if attaches != 1 || detaches != 1 {
		t.Errorf("session not balanced: %d attaches, %d detaches", attaches, detaches)
	}
}

func TestUploadFileValidation(t *testing.T) {
	cases := []struct {
		name     string
		selector string
		source   FileSource
	}{
		{"empty selector", "  ", FileSource{LocalPath: "/tmp/a"}},
		{"no source", "#f", FileSource{}},
		{"two sources", "#f", FileSource{LocalPath: "/tmp/a", RemoteURL: "http://x/a"}},
		{"all sources", "#f", FileSource{LocalPath: "/tmp/a", RemoteURL: "http://x/a", InlineData: "aGk="}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{}
			u, _ := newTestUploader(sender, nil)
			_, err := u.UploadFile(context.Background(), 1, tc.selector, tc.source, UploadOptions{})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(sender.calls) != 0 {
				t.Errorf("validation failure still sent commands: %v", sender.calls)
			}
		})
	}
}

func TestUploadFileElementNotFound(t *testing.T) {
	results := happyPathResults()
	results["DOM.querySelector"] = `{"nodeId":0}`
	sender := &fakeSender{results: results}
	u, fa := newTestUploader(sender, nil)

	_, err := u.UploadFile(context.Background(), 1, "#missing", FileSource{LocalPath: "/tmp/a"}, UploadOptions{})
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("expected ErrElementNotFound, got %v", err)
	}
	if sender.called("DOM.setFileInputFiles") {
		t.Error("mutation was attempted after resolution failed")
	}
	if _, detaches := fa.counts(); detaches != 1 {
		t.Error("session was not released on the not-found path")
	}
}

func TestUploadFileTypeMismatch(t *testing.T) {
	cases := []struct {
		name     string
		describe string
	}{
		{"not an input", `{"node":{"nodeName":"DIV","attributes":["type","file"]}}`},
		{"text input", `{"node":{"nodeName":"INPUT","attributes":["type","text"]}}`},
		{"no type attribute", `{"node":{"nodeName":"INPUT","attributes":["id","x"]}}`},
		{"attribute value coincidence", `{"node":{"nodeName":"INPUT","attributes":["name","type","placeholder","file"]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := happyPathResults()
			results["DOM.describeNode"] = tc.describe
			sender := &fakeSender{results: results}
			u, _ := newTestUploader(sender, nil)

			_, err := u.UploadFile(context.Background(), 1, "#el", FileSource{LocalPath: "/tmp/a"}, UploadOptions{})
			if !errors.Is(err, ErrElementTypeMismatch) {
				t.Fatalf("expected ErrElementTypeMismatch, got %v", err)
			}
			if sender.called("DOM.setFileInputFiles") {
				t.Error("mutation was attempted on a non-file element")
			}
		})
	}
}

func TestUploadFileProtocolFailure(t *testing.T) {
	sender := &fakeSender{
		results: happyPathResults(),
		errs:    map[string]error{"DOM.setFileInputFiles": errors.New("target closed")},
	}
	u, fa := newTestUploader(sender, nil)

	_, err := u.UploadFile(context.Background(), 1, "#f", FileSource{LocalPath: "/tmp/a"}, UploadOptions{})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if _, detaches := fa.counts(); detaches != 1 {
		t.Error("session was not released after a protocol failure")
	}
}

func TestUploadFileStagesRemoteSource(t *testing.T) {
	sender := &fakeSender{results: happyPathResults()}
	files := &fakeStager{path: "/tmp/staged/pic.png"}
	u, _ := newTestUploader(sender, files)

	res, err := u.UploadFile(context.Background(), 1, "#f",
		FileSource{RemoteURL: "http://host/pic.png"},
		UploadOptions{FileNameHint: "pic.png"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if res.Files[0] != "/tmp/staged/pic.png" {
		t.Errorf("staged path not used: %v", res.Files)
	}
	if len(files.reqs) != 1 || files.reqs[0].RemoteURL != "http://host/pic.png" || files.reqs[0].FileNameHint != "pic.png" {
		t.Errorf("unexpected stage request: %+v", files.reqs)
	}
}

func TestUploadFileStagingFailures(t *testing.T) {
	t.Run("no side channel", func(t *testing.T) {
		sender := &fakeSender{}
		u, _ := newTestUploader(sender, nil)
		_, err := u.UploadFile(context.Background(), 1, "#f", FileSource{RemoteURL: "http://x/a"}, UploadOptions{})
		if !errors.Is(err, ErrStaging) {
			t.Fatalf("expected ErrStaging, got %v", err)
		}
	})

	t.Run("empty resolution", func(t *testing.T) {
		sender := &fakeSender{}
		u, fa := newTestUploader(sender, &fakeStager{path: ""})
		_, err := u.UploadFile(context.Background(), 1, "#f", FileSource{InlineData: "aGk="}, UploadOptions{})
		if !errors.Is(err, ErrStaging) {
			t.Fatalf("expected ErrStaging, got %v", err)
		}
		if attaches, _ := fa.counts(); attaches != 0 {
			t.Error("session was acquired before staging succeeded")
		}
	})

	t.Run("stager error", func(t *testing.T) {
		sender := &fakeSender{}
		u, _ := newTestUploader(sender, &fakeStager{err: errors.New("bridge down")})
		_, err := u.UploadFile(context.Background(), 1, "#f", FileSource{InlineData: "aGk="}, UploadOptions{})
		if !errors.Is(err, ErrStaging) {
			t.Fatalf("expected ErrStaging, got %v", err)
		}
	})
}

func TestUploadFileChangeEventFailureIsDiagnostic(t *testing.T) {
	sender := &fakeSender{
		results: happyPathResults(),
		errs:    map[string]error{"Runtime.evaluate": errors.New("execution context destroyed")},
	}
	u, _ := newTestUploader(sender, nil)

	res, err := u.UploadFile(context.Background(), 1, "#f", FileSource{LocalPath: "/tmp/a"}, UploadOptions{})
	if err != nil {
		t.Fatalf("change event failure must not fail the upload: %v", err)
	}
	if len(res.Diagnostics) != 1 || !strings.Contains(res.Diagnostics[0], "change event") {
		t.Errorf("expected a change event diagnostic, got %v", res.Diagnostics)
	}
}

func TestUploadFileConflictSurfacesWithoutCommands(t *testing.T) {
	sender := &fakeSender{results: happyPathResults()}
	fa := &fakeAttacher{attachErr: ErrAttachmentConflict}
	m := NewManager(fa, NewRegistry(), nil)
	u := NewUploader(m, sender, nil, nil)

	_, err := u.UploadFile(context.Background(), 1, "#f", FileSource{LocalPath: "/tmp/a"}, UploadOptions{})
	if !errors.Is(err, ErrAttachmentConflict) {
		t.Fatalf("expected ErrAttachmentConflict, got %v", err)
	}
	if len(sender.calls) != 0 {
		t.Errorf("commands were sent without a session: %v", sender.calls)
	}
}
