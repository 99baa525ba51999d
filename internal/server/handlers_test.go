package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/embedding"
	"github.com/hyperjump/rulebook/internal/extract"
	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/llm"
	"github.com/hyperjump/rulebook/internal/metrics"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/query"
	"github.com/hyperjump/rulebook/internal/service"
	"github.com/hyperjump/rulebook/internal/storage"
	"github.com/hyperjump/rulebook/internal/volume"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeBackend struct {
	queryErr   error
	rebuildErr error
	saved      map[string]string
	rebuilt    []models.IndexKind
	cleared    bool
	lastQuery  *models.QueryRequest
}

func (f *fakeBackend) Rebuild(ctx context.Context, kind models.IndexKind) (*indexer.BuildReport, error) {
	if f.rebuildErr != nil {
		return nil, f.rebuildErr
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownIndexKind, kind)
	}
	f.rebuilt = append(f.rebuilt, kind)
	return &indexer.BuildReport{Kind: kind, Status: indexer.StatusBuilt, Loaded: len(f.saved)}, nil
}

func (f *fakeBackend) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	if err := req.Validate(3); err != nil {
		return nil, err
	}
	f.lastQuery = req
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &models.QueryResponse{Query: req.Query, Kind: req.Kind, Answer: "answer", Sources: []*models.ScoredNode{}}, nil
}

func (f *fakeBackend) SelectVolumes(ctx context.Context, q string, beamWidth int) ([]volume.Scored, error) {
	vols := volume.Registry()
	out := make([]volume.Scored, 0, beamWidth)
	for i := 0; i < beamWidth && i < len(vols); i++ {
		out = append(out, volume.Scored{Descriptor: vols[i], Score: 0.5})
	}
	return out, nil
}

func (f *fakeBackend) Volumes() []volume.Descriptor { return volume.Registry() }

func (f *fakeBackend) SaveDocument(name string, r io.Reader) (string, error) {
	if strings.HasPrefix(name, ".") {
		return "", service.ErrInvalidFilename
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[name] = string(data)
	return "/data/" + name, nil
}

func (f *fakeBackend) ClearDocuments() error {
	f.cleared = true
	return nil
}

func (f *fakeBackend) Status() (*service.Status, error) {
	return &service.Status{DataDir: "/data", Documents: len(f.saved)}, nil
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, path, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(&fakeBackend{}, &config.ServerConfig{}, nil, nil)
	w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleQuery(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		queryErr error
		want     int
	}{
		{"ok", `{"query":"capital adequacy"}`, nil, http.StatusOK},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"empty query", `{"query":"  "}`, nil, http.StatusBadRequest},
		{"unknown kind", `{"query":"x","kind":"graph"}`, nil, http.StatusBadRequest},
		{"engine not ready", `{"query":"x"}`, service.ErrEngineNotReady, http.StatusServiceUnavailable},
		{"index unavailable", `{"query":"x"}`, &query.IndexUnavailableError{Path: "/idx", Err: os.ErrNotExist}, http.StatusServiceUnavailable},
		{"internal", `{"query":"x"}`, fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeBackend{queryErr: tt.queryErr}, &config.ServerConfig{}, nil, nil)
			w := serve(t, srv, jsonRequest(http.MethodPost, "/api/v1/query", tt.body))
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleQuery_PassesRequest(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend, &config.ServerConfig{}, nil, nil)
	body := `{"query":"client money","kind":"traditional","skip_volume_selection":true,"filters":{"filename":["a.pdf"]}}`
	w := serve(t, srv, jsonRequest(http.MethodPost, "/api/v1/query", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	got := backend.lastQuery
	if got.Kind != models.IndexTraditional || !got.SkipVolumeSelection || got.Filters["filename"][0] != "a.pdf" {
		t.Errorf("request not passed through: %+v", got)
	}
	var resp models.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "answer" {
		t.Errorf("answer: got %q", resp.Answer)
	}
}

func TestHandleSelectVolumes(t *testing.T) {
	srv := NewServer(&fakeBackend{}, &config.ServerConfig{}, nil, nil)
	w := serve(t, srv, jsonRequest(http.MethodPost, "/api/v1/volumes/select", `{"query":"takaful"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out selectVolumesResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Volumes) != volume.DefaultBeamWidth {
		t.Errorf("volumes: got %d, want default beam width", len(out.Volumes))
	}

	w = serve(t, srv, jsonRequest(http.MethodPost, "/api/v1/volumes/select", `{"query":""}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status: got %d", w.Code)
	}
}

func TestHandleVolumes(t *testing.T) {
	srv := NewServer(&fakeBackend{}, &config.ServerConfig{}, nil, nil)
	w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/volumes", nil))
	var out struct {
		Volumes []volume.Descriptor `json:"volumes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Volumes) != 8 {
		t.Errorf("volumes: got %d, want 8", len(out.Volumes))
	}
}

func TestHandleUpload(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend, &config.ServerConfig{}, nil, nil)
	req := multipartRequest(t, "/api/v1/documents",
		map[string]string{"kind": "traditional"},
		map[string]string{"rulebook_vol1.pdf": "one", "rulebook_vol2.pdf": "two"})
	w := serve(t, srv, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
	if backend.saved["rulebook_vol2.pdf"] != "two" {
		t.Errorf("saved: %v", backend.saved)
	}
	if len(backend.rebuilt) != 1 || backend.rebuilt[0] != models.IndexTraditional {
		t.Errorf("rebuilt: %v", backend.rebuilt)
	}
	var out uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Files) != 2 || out.Report == nil || out.Report.Loaded != 2 {
		t.Errorf("response: %+v", out)
	}
}

func TestHandleUpload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
		want   int
	}{
		{"no files", nil, nil, http.StatusBadRequest},
		{"unknown kind", map[string]string{"kind": "graph"}, map[string]string{"a.pdf": "x"}, http.StatusBadRequest},
		{"invalid name", nil, map[string]string{".hidden": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeBackend{}, &config.ServerConfig{}, nil, nil)
			w := serve(t, srv, multipartRequest(t, "/api/v1/documents", tt.fields, tt.files))
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandleUpload_NoRebuild(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend, &config.ServerConfig{}, nil, nil)
	req := multipartRequest(t, "/api/v1/documents", map[string]string{"rebuild": "false"}, map[string]string{"a.pdf": "x"})
	w := serve(t, srv, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d", w.Code)
	}
	if len(backend.rebuilt) != 0 {
		t.Errorf("unexpected rebuild: %v", backend.rebuilt)
	}
}

func TestHandleUpload_TooLarge(t *testing.T) {
	srv := NewServer(&fakeBackend{}, &config.ServerConfig{MaxUploadMB: 1}, nil, nil)
	big := strings.Repeat("x", 2<<20)
	w := serve(t, srv, multipartRequest(t, "/api/v1/documents", nil, map[string]string{"big.pdf": big}))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestUploadLimit(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.ServerConfig
		want int64
	}{
		{"nil config", nil, int64(config.DefaultMaxUploadMB) << 20},
		{"unset", &config.ServerConfig{}, int64(config.DefaultMaxUploadMB) << 20},
		{"configured", &config.ServerConfig{MaxUploadMB: 5}, 5 << 20},
	}
	for _, tt := range tests {
		srv := NewServer(&fakeBackend{}, tt.cfg, nil, nil)
		if got := srv.uploadLimit(); got != tt.want {
			t.Errorf("%s: uploadLimit() = %d, want %d", tt.name, got, tt.want)
		}
	}
	defaults := &config.Config{}
	config.ApplyDefaults(defaults)
	if defaults.Server.MaxUploadMB != config.DefaultMaxUploadMB {
		t.Errorf("config default %d differs from handler fallback %d", defaults.Server.MaxUploadMB, config.DefaultMaxUploadMB)
	}
}

func TestHandleRebuild(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend, &config.ServerConfig{}, nil, nil)
	w := serve(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/indexes/hierarchical/rebuild", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	w = serve(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/indexes/graph/rebuild", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status: got %d", w.Code)
	}
	backend.rebuildErr = fmt.Errorf("%w to /x: disk full", indexer.ErrPersist)
	w = serve(t, srv, httptest.NewRequest(http.MethodPost, "/api/v1/indexes/hierarchical/rebuild", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("persist failure status: got %d", w.Code)
	}
}

func TestHandleClearDocumentsAndStatus(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend, &config.ServerConfig{}, nil, nil)
	w := serve(t, srv, httptest.NewRequest(http.MethodDelete, "/api/v1/documents", nil))
	if w.Code != http.StatusOK || !backend.cleared {
		t.Errorf("clear: status %d, cleared %v", w.Code, backend.cleared)
	}
	w = serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var st service.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.DataDir != "/data" {
		t.Errorf("data dir: got %q", st.DataDir)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordQuery("hierarchical", "ok", 2, 0)
	srv := NewServer(&fakeBackend{}, &config.ServerConfig{}, nil, reg)
	w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rulebook_queries_total") {
		t.Errorf("metrics body missing query counter:\n%s", w.Body.String())
	}

	noMetrics := NewServer(&fakeBackend{}, &config.ServerConfig{}, nil, nil)
	w = serve(t, noMetrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("metrics without gatherer: got %d", w.Code)
	}
}

func TestServer_UploadThenQuery(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DataDir = filepath.Join(root, "docs")
	cfg.Storage.HierarchicalIndexPath = filepath.Join(root, "hier")
	cfg.Storage.TraditionalIndexPath = filepath.Join(root, "trad")
	cfg.Embedding.Provider = "mock"
	config.ApplyDefaults(cfg)
	cfg.Index.Extensions = []string{".txt"}
	cfg.Index.ChunkSizes = []int{32, 16}
	cfg.Index.ChunkOverlap = 4

	emb := embedding.NewMockEmbedder(8)
	store := storage.NewIndexStore(nil)
	completer := &llm.MockCompleter{Responses: []string{"Banks must report capital."}}
	svc := service.New(cfg,
		indexer.NewBuilder(extract.NewExtractor(), emb, store, cfg.Index),
		&query.Factory{Store: store, Embedder: emb, Synthesizer: query.NewLLMSynthesizer(completer)},
		volume.NewSelector(completer))
	defer svc.Close()
	srv := NewServer(svc, &cfg.Server, nil, nil)

	w := serve(t, srv, jsonRequest(http.MethodPost, "/api/v1/query", `{"query":"capital"}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("query before build: got %d", w.Code)
	}

	req := multipartRequest(t, "/api/v1/documents", nil,
		map[string]string{"rulebook_vol1.txt": "Volume 1: Conventional Banks\nBanks shall report capital monthly."})
	w = serve(t, srv, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: got %d (%s)", w.Code, w.Body.String())
	}

	w = serve(t, srv, jsonRequest(http.MethodPost, "/api/v1/query", `{"query":"capital","skip_volume_selection":true}`))
	if w.Code != http.StatusOK {
		t.Fatalf("query: got %d (%s)", w.Code, w.Body.String())
	}
	var resp models.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Banks must report capital." || len(resp.Sources) == 0 {
		t.Errorf("response: %+v", resp)
	}
}
