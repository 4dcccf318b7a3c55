package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/cli"
	"github.com/hyperjump/kura/internal/models"
)

// backend is what the client commands run against: a remote server or the local store root.
type backend interface {
	Search(ctx context.Context, q models.Query) (*models.SearchResponse, error)
	Ask(ctx context.Context, q models.Query) (*models.RAGAnswer, error)
	Upload(ctx context.Context, store, path string, chunkSize, chunkOverlap *int) (*models.UploadResult, error)
	List(ctx context.Context) (*models.StoreList, error)
	Info(ctx context.Context, store string) (*models.StoreDetail, error)
	Delete(ctx context.Context, store string) (*models.DeleteResult, error)
}

var _ backend = (*cli.Client)(nil)

// localBackend serves client commands from in-process components, for use without a server.
type localBackend struct {
	components *Components
}

func (b *localBackend) Search(ctx context.Context, q models.Query) (*models.SearchResponse, error) {
	return b.components.Engine.Retrieve(ctx, q)
}

func (b *localBackend) Ask(ctx context.Context, q models.Query) (*models.RAGAnswer, error) {
	return b.components.Engine.Answer(ctx, q)
}

func (b *localBackend) Upload(ctx context.Context, store, path string, chunkSize, chunkOverlap *int) (*models.UploadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.IO("upload", store, err)
	}
	return b.components.Ingestor.Ingest(ctx, models.IngestRequest{
		StoreName:    store,
		Filename:     filepath.Base(path),
		Content:      content,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	})
}

func (b *localBackend) List(ctx context.Context) (*models.StoreList, error) {
	stores, err := b.components.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	return &models.StoreList{Count: len(stores), Databases: stores}, nil
}

func (b *localBackend) Info(ctx context.Context, store string) (*models.StoreDetail, error) {
	return b.components.Registry.Info(ctx, store)
}

func (b *localBackend) Delete(ctx context.Context, store string) (*models.DeleteResult, error) {
	path, err := b.components.Registry.Delete(ctx, store)
	if err != nil {
		return nil, err
	}
	return &models.DeleteResult{
		Status:      "success",
		Message:     fmt.Sprintf("Vector DB '%s' has been deleted", store),
		DeletedPath: path,
	}, nil
}
