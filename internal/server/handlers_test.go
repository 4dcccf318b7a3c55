package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/extract"
	"github.com/hyperjump/kura/internal/extract/extracttest"
	"github.com/hyperjump/kura/internal/generation"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/metrics"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/rag"
	"github.com/hyperjump/kura/internal/registry"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(newTestServer(t).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.MaxUploadMB = 1

	m := metrics.New()
	emb := embedding.NewMockEmbedder(32)
	reg := registry.New(t.TempDir(), registry.WithCacheSize(4), registry.WithMetrics(m))
	ingestor := indexer.NewIngestor(reg, emb, extract.NewExtractor(), cfg.Ingest, indexer.WithMetrics(m))
	engine := rag.NewEngine(reg, emb, generation.NewMockGenerator(), cfg.Retrieval, rag.WithMetrics(m))
	return NewServer(reg, ingestor, engine, m, &cfg.Server, Info{Version: "test", Mock: true}, zap.NewNop())
}

func uploadRequest(t *testing.T, url, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, req *http.Request, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s", req.Method, req.URL.Path, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
}

func postJSON(t *testing.T, url string, v interface{}) *http.Request {
	t.Helper()
	b, _ := json.Marshal(v)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestUploadSearchDelete(t *testing.T) {
	ts := testServer(t)
	pdf := extracttest.MinimalPDF("alpha page about rivers", "bravo page about mountains", "charlie page about deserts")

	var up models.UploadResult
	do(t, uploadRequest(t, ts.URL+"/api/v1/stores/docs/documents", "atlas.pdf", pdf, nil), http.StatusCreated, &up)
	if up.Status != "success" || up.StoreName != "docs" || up.Pages != 3 || up.Chunks < 3 || up.Filename != "atlas.pdf" {
		t.Errorf("upload result: %+v", up)
	}

	var found models.SearchResponse
	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "mountains", "db_name": "docs"}), http.StatusOK, &found)
	if found.Total == 0 || found.Total > 3 || len(found.Results) != found.Total {
		t.Errorf("search: %+v", found)
	}
	for _, h := range found.Results {
		if h.Metadata.Source != "atlas.pdf" || h.Metadata.Page < 1 || h.Metadata.Page > 3 {
			t.Errorf("hit metadata: %+v", h.Metadata)
		}
	}

	var ans models.RAGAnswer
	do(t, postJSON(t, ts.URL+"/api/v1/rag", map[string]interface{}{"query": "Which page covers deserts?", "db_name": "docs", "top_k": 2}), http.StatusOK, &ans)
	if !strings.HasPrefix(ans.Answer, "[mock answer]") || len(ans.SourceDocuments) != 2 || !ans.Grounded {
		t.Errorf("rag: %+v", ans)
	}

	var detail models.StoreDetail
	do(t, newRequest(t, http.MethodGet, ts.URL+"/api/v1/stores/docs"), http.StatusOK, &detail)
	if detail.ChunkCount != up.Chunks || detail.Dimensions != 32 {
		t.Errorf("detail: %+v", detail)
	}

	var del models.DeleteResult
	do(t, newRequest(t, http.MethodDelete, ts.URL+"/api/v1/stores/docs"), http.StatusOK, &del)
	if del.Message != "Vector DB 'docs' has been deleted" || del.DeletedPath != up.Location {
		t.Errorf("delete: %+v", del)
	}

	var e errorBody
	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "mountains", "db_name": "docs"}), http.StatusNotFound, &e)
	if e.Code != "not_found" {
		t.Errorf("search after delete: %+v", e)
	}
	do(t, postJSON(t, ts.URL+"/api/v1/rag", map[string]interface{}{"query": "anything", "db_name": "docs"}), http.StatusNotFound, &e)
	do(t, newRequest(t, http.MethodGet, ts.URL+"/api/v1/stores/docs"), http.StatusNotFound, &e)
	do(t, newRequest(t, http.MethodDelete, ts.URL+"/api/v1/stores/docs"), http.StatusNotFound, &e)
}

func TestListAfterDelete(t *testing.T) {
	ts := testServer(t)
	for _, name := range []string{"a", "b"} {
		do(t, uploadRequest(t, ts.URL+"/api/v1/upload", name+".txt", []byte("notes for store "+name), map[string]string{"db_name": name}), http.StatusCreated, nil)
	}

	var list models.StoreList
	do(t, newRequest(t, http.MethodGet, ts.URL+"/api/v1/stores"), http.StatusOK, &list)
	if list.Count != 2 || list.Databases[0].Name != "a" || list.Databases[1].Name != "b" {
		t.Fatalf("list: %+v", list)
	}

	do(t, newRequest(t, http.MethodDelete, ts.URL+"/api/v1/stores/a"), http.StatusOK, nil)
	do(t, newRequest(t, http.MethodGet, ts.URL+"/api/v1/stores"), http.StatusOK, &list)
	if list.Count != 1 || list.Databases[0].Name != "b" {
		t.Errorf("after delete: %+v", list)
	}
}

func TestUploadDefaultStore(t *testing.T) {
	ts := testServer(t)
	var up models.UploadResult
	do(t, uploadRequest(t, ts.URL+"/api/v1/upload", "readme.md", []byte("# Title\n\nSome text."), map[string]string{"chunk_size": "500", "chunk_overlap": "50"}), http.StatusCreated, &up)
	if up.StoreName != models.DefaultStoreName || up.ChunkSize != 500 || up.ChunkOverlap != 50 {
		t.Errorf("upload: %+v", up)
	}
	var found models.SearchResponse
	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "title"}), http.StatusOK, &found)
	if found.StoreName != models.DefaultStoreName || found.Total != 1 {
		t.Errorf("search default store: %+v", found)
	}
}

func TestUploadExplicitZeroOverlap(t *testing.T) {
	ts := testServer(t)
	var up models.UploadResult
	do(t, uploadRequest(t, ts.URL+"/api/v1/upload", "readme.md", []byte("# Title\n\nSome text."), map[string]string{"chunk_overlap": "0"}), http.StatusCreated, &up)
	if up.ChunkOverlap != 0 || up.ChunkSize != 1000 {
		t.Errorf("upload: %+v", up)
	}

	var body map[string]interface{}
	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "title", "top_k": 0}), http.StatusBadRequest, &body)
}

func TestUploadErrors(t *testing.T) {
	ts := testServer(t)
	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"missing file", uploadRequest(t, ts.URL+"/api/v1/stores/docs/documents", "", nil, nil), http.StatusBadRequest, "validation_error"},
		{"bad store name", uploadRequest(t, ts.URL+"/api/v1/upload", "a.txt", []byte("x"), map[string]string{"db_name": "../etc"}), http.StatusBadRequest, "validation_error"},
		{"bad chunk size", uploadRequest(t, ts.URL+"/api/v1/upload", "a.txt", []byte("x"), map[string]string{"chunk_size": "big"}), http.StatusBadRequest, "validation_error"},
		{"overlap too large", uploadRequest(t, ts.URL+"/api/v1/upload", "a.txt", []byte("x"), map[string]string{"chunk_size": "10", "chunk_overlap": "10"}), http.StatusBadRequest, "validation_error"},
		{"no text", uploadRequest(t, ts.URL+"/api/v1/upload", "blank.txt", []byte(" \n\n "), nil), http.StatusUnprocessableEntity, "extraction_error"},
		{"broken pdf", uploadRequest(t, ts.URL+"/api/v1/upload", "bad.pdf", []byte("%PDF-1.4 garbage"), nil), http.StatusUnprocessableEntity, "extraction_error"},
		{"not multipart", postJSON(t, ts.URL+"/api/v1/upload", map[string]string{"file": "x"}), http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e errorBody
			do(t, tt.req, tt.status, &e)
			if e.Code != tt.code || e.Error == "" {
				t.Errorf("error body: %+v", e)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := newTestServer(t).Handler()
	req := uploadRequest(t, "/api/v1/upload", "big.txt", bytes.Repeat([]byte("a"), 2<<20), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var e errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e.Code != "validation_error" {
		t.Errorf("error body: %+v", e)
	}
}

func TestSearchValidation(t *testing.T) {
	ts := testServer(t)
	var e errorBody
	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "", "db_name": "docs"}), http.StatusBadRequest, &e)
	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "q", "top_k": 11}), http.StatusBadRequest, &e)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/rag", strings.NewReader("{not json"))
	do(t, req, http.StatusBadRequest, &e)
	if e.Code != "validation_error" {
		t.Errorf("code: %s", e.Code)
	}
	do(t, newRequest(t, http.MethodGet, ts.URL+"/api/v1/stores/..%2Fetc"), http.StatusBadRequest, &e)
}

func TestRootHealthMetrics(t *testing.T) {
	ts := testServer(t)
	var root map[string]interface{}
	do(t, newRequest(t, http.MethodGet, ts.URL+"/"), http.StatusOK, &root)
	if root["service"] != "kura" || root["mock"] != true || root["version"] != "test" {
		t.Errorf("root: %v", root)
	}
	var health map[string]string
	do(t, newRequest(t, http.MethodGet, ts.URL+"/health"), http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Errorf("health: %v", health)
	}

	do(t, postJSON(t, ts.URL+"/api/v1/search", map[string]interface{}{"query": "q", "db_name": "missing"}), http.StatusNotFound, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `kura_search_total{outcome="not_found"} 1`) {
		t.Errorf("metrics missing search counter:\n%s", body)
	}
}
