package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/models"
)

// Client talks to a running kura server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL (e.g. http://localhost:8080).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Search runs a similarity search.
func (c *Client) Search(ctx context.Context, q models.Query) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.postJSON(ctx, "search", q.StoreName, "/api/v1/search", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask runs retrieval-augmented generation.
func (c *Client) Ask(ctx context.Context, q models.Query) (*models.RAGAnswer, error) {
	var out models.RAGAnswer
	if err := c.postJSON(ctx, "ask", q.StoreName, "/api/v1/rag", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload sends the file at path to be ingested into store. Nil chunk parameters are
// omitted so the server applies its defaults.
func (c *Client) Upload(ctx context.Context, store, path string, chunkSize, chunkOverlap *int) (*models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.IO("upload", store, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, apperr.IO("upload", store, err)
	}
	if chunkSize != nil {
		_ = mw.WriteField("chunk_size", strconv.Itoa(*chunkSize))
	}
	if chunkOverlap != nil {
		_ = mw.WriteField("chunk_overlap", strconv.Itoa(*chunkOverlap))
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/stores/"+url.PathEscape(store)+"/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.UploadResult
	if err := c.do(req, "upload", store, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the stores on the server.
func (c *Client) List(ctx context.Context) (*models.StoreList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stores", nil)
	if err != nil {
		return nil, err
	}
	var out models.StoreList
	if err := c.do(req, "list", "", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Info describes one store.
func (c *Client) Info(ctx context.Context, store string) (*models.StoreDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stores/"+url.PathEscape(store), nil)
	if err != nil {
		return nil, err
	}
	var out models.StoreDetail
	if err := c.do(req, "info", store, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes one store.
func (c *Client) Delete(ctx context.Context, store string) (*models.DeleteResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/stores/"+url.PathEscape(store), nil)
	if err != nil {
		return nil, err
	}
	var out models.DeleteResult
	if err := c.do(req, "delete", store, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, op, store, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, store, http.StatusOK, out)
}

// do sends req and decodes a response with status want into out. Error bodies of the form
// {"error", "code"} come back as *apperr.Error of the matching kind.
func (c *Client) do(req *http.Request, op, store string, want int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Classify(apperr.KindUnknown, op, store, fmt.Errorf("failed to reach server: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(data, &body) != nil || body.Code == "" {
			return apperr.New(apperr.KindUnknown, op, store, fmt.Errorf("server returned %s", resp.Status))
		}
		return apperr.New(apperr.KindFromCode(body.Code), op, store, errors.New(body.Error))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
