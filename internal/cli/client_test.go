package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/pkg/utils"
)

func newClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Search(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var q models.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Error(err)
			return
		}
		if q.Text != "refunds" || q.K() != 2 || q.StoreName != "docs" {
			t.Errorf("query = %+v", q)
		}
		writeJSON(w, http.StatusOK, models.SearchResponse{Query: q.Text, StoreName: q.StoreName, Results: []models.SearchHit{{Content: "x"}}, Total: 1})
	}))
	resp, err := c.Search(context.Background(), models.Query{Text: "refunds", TopK: utils.Ptr(2), StoreName: "docs"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].Content != "x" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClient_errorKinds(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/stores/missing":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found", "code": "not_found"})
		case "/api/v1/rag":
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model down", "code": "generation_error"})
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	ctx := context.Background()

	_, err := c.Info(ctx, "missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Info: got %v, want not_found", err)
	}
	_, err = c.Ask(ctx, models.Query{Text: "q", StoreName: "docs"})
	if !apperr.Is(err, apperr.KindGeneration) {
		t.Errorf("Ask: got %v, want generation_error", err)
	}
	_, err = c.List(ctx)
	if !apperr.Is(err, apperr.KindUnknown) {
		t.Errorf("List: got %v, want unknown for a non-JSON error body", err)
	}
}

func TestClient_Upload(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stores/docs/documents" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Error(err)
			return
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "notes.txt" || string(data) != "hello" {
			t.Errorf("got %s %q", header.Filename, data)
		}
		if r.FormValue("chunk_size") != "500" || r.FormValue("chunk_overlap") != "0" {
			t.Errorf("chunk fields: %q %q", r.FormValue("chunk_size"), r.FormValue("chunk_overlap"))
		}
		writeJSON(w, http.StatusCreated, models.UploadResult{Status: "success", Filename: header.Filename, StoreName: "docs", Chunks: 1})
	}))
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	res, err := c.Upload(context.Background(), "docs", path, utils.Ptr(500), utils.Ptr(0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != 1 || res.StoreName != "docs" {
		t.Errorf("res = %+v", res)
	}

	if _, err := c.Upload(context.Background(), "docs", filepath.Join(t.TempDir(), "nope.pdf"), nil, nil); !apperr.Is(err, apperr.KindIO) {
		t.Errorf("missing file: got %v", err)
	}
}

func TestClient_Delete(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/stores/docs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, models.DeleteResult{Status: "success", Message: "deleted", DeletedPath: "/data/docs"})
	}))
	res, err := c.Delete(context.Background(), "docs")
	if err != nil {
		t.Fatal(err)
	}
	if res.DeletedPath != "/data/docs" {
		t.Errorf("res = %+v", res)
	}
}

func TestClient_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := NewClient(url, time.Second).List(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}
