package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/index"
	"github.com/leafwise/tomatodoc/internal/metrics"
	"github.com/leafwise/tomatodoc/internal/transport/classifier"
	chatuc "github.com/leafwise/tomatodoc/internal/usecase/chat"
	healthuc "github.com/leafwise/tomatodoc/internal/usecase/health"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Mocks ---

type stubRetriever struct {
	hits []index.Hit
	err  error
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ int) ([]index.Hit, error) {
	return s.hits, s.err
}

type stubGenerator struct {
	answer string
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	return s.answer, s.err
}

type stubIndexStatus struct {
	available bool
	size      int
}

func (s *stubIndexStatus) Available() bool { return s.available }
func (s *stubIndexStatus) IndexSize() int  { return s.size }

// --- Helpers ---

func newTestServer(t *testing.T, ret chatuc.Retriever, gen chatuc.Generator, cls *classifier.Client) *httptest.Server {
	t.Helper()

	chatSvc := chatuc.New(chatuc.Params{
		Sessions:  chatuc.NewRegistry(),
		Retriever: ret,
		Generator: gen,
		Strict:    true,
	})
	healthSvc := healthuc.New(&stubIndexStatus{available: true, size: 7}, nil, nil, nil)

	srv := NewServer(chatSvc, healthSvc, cls, zap.NewNop())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp, err := http.Post(ts.URL+"/api/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if body.SessionID == "" {
		t.Fatal("empty session id")
	}
	return body.SessionID
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (code, message string) {
	t.Helper()

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code, body.Message
}

func testHit(t *testing.T, text, sourceID string) index.Hit {
	t.Helper()
	c, err := domain.NewChunk(text, sourceID, 0)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	return index.Hit{Chunk: c, Score: 0.9}
}

// --- Tests ---

func TestChat_HappyPath(t *testing.T) {
	ret := &stubRetriever{hits: []index.Hit{testHit(t, "chunk text", "early-blight.md")}}
	ts := newTestServer(t, ret, &stubGenerator{answer: "Treat with fungicide."}, nil)

	sessionID := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/chat", map[string]any{
		"question": "How do I treat early blight?",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}

	var body struct {
		Answer        string   `json:"answer"`
		Sources       []string `json:"sources"`
		DetectionUsed bool     `json:"detectionUsed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if body.Answer != "Treat with fungicide." {
		t.Errorf("unexpected answer: %q", body.Answer)
	}
	if len(body.Sources) != 1 || body.Sources[0] != "early-blight.md" {
		t.Errorf("unexpected sources: %v", body.Sources)
	}
}

func TestChat_UnknownSession(t *testing.T) {
	ts := newTestServer(t, &stubRetriever{}, &stubGenerator{answer: "x"}, nil)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/nope/chat", map[string]any{"question": "q"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, expected 404", resp.StatusCode)
	}
	if code, _ := decodeError(t, resp); code != "session_not_found" {
		t.Errorf("code = %q", code)
	}
}

func TestChat_EmptyQuestion(t *testing.T) {
	ts := newTestServer(t, &stubRetriever{}, &stubGenerator{answer: "x"}, nil)
	sessionID := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/chat", map[string]any{"question": ""})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", resp.StatusCode)
	}
	if code, _ := decodeError(t, resp); code != "validation_failed" {
		t.Errorf("code = %q", code)
	}
}

func TestChat_IndexUnavailable(t *testing.T) {
	ret := &stubRetriever{err: fmt.Errorf("index unavailable: %w", domain.ErrIndexNotFound)}
	ts := newTestServer(t, ret, &stubGenerator{answer: "x"}, nil)
	sessionID := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/chat", map[string]any{"question": "q"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, expected 503", resp.StatusCode)
	}
	code, message := decodeError(t, resp)
	if code != "index_unavailable" {
		t.Errorf("code = %q", code)
	}
	if message == "" || !bytes.Contains([]byte(message), []byte("tomatodoc ingest")) {
		t.Errorf("message should instruct a rebuild, got %q", message)
	}
}

func TestChat_GenerationFailed(t *testing.T) {
	ts := newTestServer(t, &stubRetriever{}, &stubGenerator{err: domain.ErrGeneration}, nil)
	sessionID := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/chat", map[string]any{"question": "q"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, expected 502", resp.StatusCode)
	}
	if code, _ := decodeError(t, resp); code != "generation_failed" {
		t.Errorf("code = %q", code)
	}
}

func TestHistoryAndReset(t *testing.T) {
	ts := newTestServer(t, &stubRetriever{}, &stubGenerator{answer: "a"}, nil)
	sessionID := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/chat", map[string]any{"question": "q"})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + sessionID + "/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	var history struct {
		Turns []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	resp.Body.Close()

	if len(history.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history.Turns))
	}
	if history.Turns[0].Role != "user" || history.Turns[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", history.Turns)
	}

	resp = postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/reset", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/sessions/" + sessionID + "/history")
	if err != nil {
		t.Fatalf("GET history after reset: %v", err)
	}
	defer resp.Body.Close()
	history.Turns = nil
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Turns) != 0 {
		t.Errorf("expected empty history after reset, got %d turns", len(history.Turns))
	}
}

func TestDetect_StagesDetection(t *testing.T) {
	clsBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"className":  "Tomato_Septoria_leaf_spot",
			"confidence": 84.2,
		})
	}))
	defer clsBackend.Close()

	cls := classifier.New(&classifier.Config{URL: clsBackend.URL, Logger: zap.NewNop()})
	gen := &stubGenerator{answer: "ok"}
	ts := newTestServer(t, &stubRetriever{}, gen, cls)
	sessionID := createSession(t, ts)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "leaf.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte{0xFF, 0xD8, 0xFF})
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/v1/sessions/"+sessionID+"/detect", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST detect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detect status = %d", resp.StatusCode)
	}

	var detect struct {
		ClassName string `json:"className"`
		KBSlug    string `json:"kbSlug"`
		HumanName string `json:"humanName"`
		Staged    bool   `json:"staged"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detect); err != nil {
		t.Fatalf("decode detect response: %v", err)
	}
	if detect.KBSlug != "septoria-leaf-spot" || !detect.Staged {
		t.Errorf("unexpected detect response: %+v", detect)
	}

	// The staged detection reaches the next chat turn.
	resp = postJSON(t, ts.URL+"/api/v1/sessions/"+sessionID+"/chat", map[string]any{"question": "what is this?"})
	defer resp.Body.Close()

	var chat struct {
		DetectionUsed bool `json:"detectionUsed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if !chat.DetectionUsed {
		t.Error("expected detectionUsed true after staging")
	}
}

func TestDetect_NoClassifierConfigured(t *testing.T) {
	ts := newTestServer(t, &stubRetriever{}, &stubGenerator{answer: "x"}, nil)
	sessionID := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/api/v1/sessions/"+sessionID+"/detect", "multipart/form-data", nil)
	if err != nil {
		t.Fatalf("POST detect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, expected 501", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &stubRetriever{}, &stubGenerator{answer: "x"}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status    string            `json:"status"`
		Checks    map[string]string `json:"checks"`
		IndexSize int               `json:"indexSize"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "ok" || body.Checks["index"] != "ok" || body.IndexSize != 7 {
		t.Errorf("unexpected health body: %+v", body)
	}
}
