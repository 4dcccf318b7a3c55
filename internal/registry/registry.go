// Package registry manages the directory of named vector stores: naming, listing,
// atomic replacement, deletion and a cache of loaded indexes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/lru"
	"github.com/hyperjump/kura/internal/metrics"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/vector"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Work directories live next to the stores; their names can never pass ValidateName.
const (
	tempPrefix  = ".tmp-"
	trashPrefix = ".trash-"
)

type cachedIndex struct {
	idx        *vector.Index
	generation uint64
}

// Registry owns the store root directory. Writers of one name are serialized by a
// per-name lock that is held only while directories are swapped or removed.
type Registry struct {
	root    string
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	locks       map[string]*sync.RWMutex
	generations map[string]uint64

	cache *lru.Cache[string, cachedIndex]
	loads singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a logger for store lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records index cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithCacheSize sets how many loaded indexes are kept in memory. 0 disables the cache.
func WithCacheSize(n int) Option {
	return func(r *Registry) { r.cache = lru.New[string, cachedIndex](n) }
}

// New returns a registry rooted at root. The directory is created on first save.
func New(root string, opts ...Option) *Registry {
	r := &Registry{
		root:        root,
		logger:      zap.NewNop(),
		locks:       make(map[string]*sync.RWMutex),
		generations: make(map[string]uint64),
		cache:       lru.New[string, cachedIndex](0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the store root directory.
func (r *Registry) Root() string {
	return r.root
}

// ValidateName rejects names outside [A-Za-z0-9_-]{1,64}.
func (r *Registry) ValidateName(name string) error {
	return ValidateName(name)
}

// ValidateName rejects names outside [A-Za-z0-9_-]{1,64}.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return apperr.Validation("validate name", "", "invalid store name %q: use 1-64 letters, digits, '-' or '_'", name)
	}
	return nil
}

// LocationOf returns the directory of the named store.
func (r *Registry) LocationOf(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(r.root, name), nil
}

// Exists reports whether a complete store with this name exists.
func (r *Registry) Exists(name string) bool {
	dir, err := r.LocationOf(name)
	if err != nil {
		return false
	}
	l := r.lock(name)
	l.RLock()
	defer l.RUnlock()
	return storeComplete(dir)
}

// List returns every complete store sorted by name.
func (r *Registry) List(ctx context.Context) ([]models.StoreSummary, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.StoreSummary{}, nil
	}
	if err != nil {
		return nil, apperr.IO("list", "", err)
	}

	stores := make([]models.StoreSummary, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Cancelled("list", "", err)
		}
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		if s, ok := r.summarize(ctx, e.Name()); ok {
			stores = append(stores, s)
		}
	}
	return stores, nil
}

func (r *Registry) summarize(ctx context.Context, name string) (models.StoreSummary, bool) {
	dir := filepath.Join(r.root, name)
	l := r.lock(name)
	l.RLock()
	defer l.RUnlock()

	if !storeComplete(dir) {
		return models.StoreSummary{}, false
	}
	usage, err := storage.Usage(dir)
	if err != nil {
		r.logger.Warn("store size unavailable", zap.String("store", name), zap.Error(err))
		return models.StoreSummary{}, false
	}
	created := usage.Modified
	if m, err := readManifest(ctx, dir); err == nil {
		created = m.CreatedAt
	}
	return models.StoreSummary{
		Name:      name,
		Path:      dir,
		SizeBytes: usage.Total,
		Created:   created,
		Modified:  usage.Modified,
	}, true
}

// Info describes one store.
func (r *Registry) Info(ctx context.Context, name string) (*models.StoreDetail, error) {
	dir, err := r.LocationOf(name)
	if err != nil {
		return nil, err
	}
	l := r.lock(name)
	l.RLock()
	defer l.RUnlock()

	if err := present(dir, "info", name); err != nil {
		return nil, err
	}
	if !storeComplete(dir) {
		return nil, apperr.CorruptStore("info", name, errors.New("payload or sidecar missing"))
	}

	sidecar, err := storage.OpenSQLiteChunkStore(filepath.Join(dir, vector.ChunksFile))
	if err != nil {
		return nil, apperr.Classify(apperr.KindCorruptStore, "info", name, err)
	}
	defer sidecar.Close()
	manifest, err := sidecar.ReadManifest(ctx)
	if err != nil {
		return nil, apperr.Classify(apperr.KindCorruptStore, "info", name, err)
	}
	count, err := sidecar.CountChunks(ctx)
	if err != nil {
		return nil, apperr.Classify(apperr.KindCorruptStore, "info", name, err)
	}
	if int(count) != manifest.ChunkCount {
		return nil, apperr.CorruptStore("info", name, fmt.Errorf("manifest lists %d chunks, sidecar holds %d", manifest.ChunkCount, count))
	}

	usage, err := storage.Usage(dir)
	if err != nil {
		return nil, apperr.IO("info", name, err)
	}
	total := usage.Total
	return &models.StoreDetail{
		Name:           name,
		Path:           dir,
		Files:          usage.Files,
		TotalSizeBytes: total,
		TotalSizeMB:    math.Round(float64(total)/(1024*1024)*100) / 100,
		Created:        manifest.CreatedAt,
		Modified:       usage.Modified,
		EmbeddingModel: manifest.EmbeddingModel,
		Dimensions:     manifest.Dimensions,
		ChunkCount:     manifest.ChunkCount,
	}, nil
}

// Delete removes the named store and returns the directory it occupied. A store whose
// files are damaged is still removed.
func (r *Registry) Delete(ctx context.Context, name string) (string, error) {
	dir, err := r.LocationOf(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.Cancelled("delete", name, err)
	}
	l := r.lock(name)
	l.Lock()
	defer l.Unlock()

	if err := present(dir, "delete", name); err != nil {
		return "", err
	}
	trash := filepath.Join(r.root, trashPrefix+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil {
		return "", apperr.IO("delete", name, err)
	}
	r.invalidate(name)
	if err := os.RemoveAll(trash); err != nil {
		r.logger.Warn("failed to remove deleted store", zap.String("store", name), zap.String("path", trash), zap.Error(err))
	}
	r.logger.Debug("store deleted", zap.String("store", name), zap.String("path", dir))
	return dir, nil
}

// Save writes idx as the named store, replacing any previous store of that name.
// Files are written to a temporary directory first and swapped in under the write
// lock, so readers see either the old or the new store.
func (r *Registry) Save(ctx context.Context, name string, idx *vector.Index) (string, error) {
	final, err := r.LocationOf(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return "", apperr.IO("save", name, err)
	}
	tmp := filepath.Join(r.root, tempPrefix+uuid.NewString())
	if err := os.Mkdir(tmp, 0755); err != nil {
		return "", apperr.IO("save", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := idx.Serialize(ctx, tmp); err != nil {
		return "", apperr.WithStore(err, name)
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.Cancelled("save", name, err)
	}

	l := r.lock(name)
	l.Lock()
	defer l.Unlock()

	trash := ""
	if _, err := os.Lstat(final); err == nil {
		trash = filepath.Join(r.root, trashPrefix+uuid.NewString())
		if err := os.Rename(final, trash); err != nil {
			return "", apperr.IO("save", name, err)
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		if trash != "" {
			_ = os.Rename(trash, final)
		}
		return "", apperr.IO("save", name, err)
	}
	committed = true
	r.invalidate(name)

	if trash != "" {
		if err := os.RemoveAll(trash); err != nil {
			r.logger.Warn("failed to remove replaced store", zap.String("store", name), zap.String("path", trash), zap.Error(err))
		}
	}
	r.logger.Debug("store saved", zap.String("store", name), zap.String("path", final), zap.Int("chunks", idx.Len()))
	return final, nil
}

// Load returns the index of the named store, built for embedder's model.
// Concurrent loads of one store share a single read.
func (r *Registry) Load(ctx context.Context, name string, embedder embedding.Embedder) (*vector.Index, error) {
	dir, err := r.LocationOf(name)
	if err != nil {
		return nil, err
	}
	key := name + "|" + embedder.ModelID()

	r.mu.Lock()
	gen := r.generations[name]
	r.mu.Unlock()
	if c, ok := r.cache.Get(key); ok && c.generation == gen {
		r.metrics.ObserveCache("index", true)
		return c.idx, nil
	}
	r.metrics.ObserveCache("index", false)

	ch := r.loads.DoChan(fmt.Sprintf("%s|%d", key, gen), func() (any, error) {
		return r.load(context.WithoutCancel(ctx), dir, name, key, embedder)
	})
	select {
	case <-ctx.Done():
		return nil, apperr.Cancelled("load", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*vector.Index), nil
	}
}

func (r *Registry) load(ctx context.Context, dir, name, key string, embedder embedding.Embedder) (*vector.Index, error) {
	l := r.lock(name)
	l.RLock()
	defer l.RUnlock()

	r.mu.Lock()
	gen := r.generations[name]
	r.mu.Unlock()

	if !storeComplete(dir) {
		if err := present(dir, "load", name); err != nil {
			return nil, err
		}
		return nil, apperr.CorruptStore("load", name, errors.New("payload or sidecar missing"))
	}
	start := time.Now()
	idx, err := vector.Deserialize(ctx, dir, embedder)
	if err != nil {
		return nil, apperr.WithStore(err, name)
	}

	r.mu.Lock()
	if r.generations[name] == gen {
		r.cache.Set(key, cachedIndex{idx: idx, generation: gen})
	}
	r.mu.Unlock()
	r.logger.Debug("store loaded", zap.String("store", name), zap.Int("chunks", idx.Len()), zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// Sweep removes temporary and trash directories left behind by an interrupted save or delete.
func (r *Registry) Sweep() error {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		n := e.Name()
		if !strings.HasPrefix(n, tempPrefix) && !strings.HasPrefix(n, trashPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.root, n)); err != nil {
			errs = append(errs, err)
			continue
		}
		r.logger.Info("removed leftover directory", zap.String("path", filepath.Join(r.root, n)))
	}
	return errors.Join(errs...)
}

func (r *Registry) lock(name string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[name] = l
	}
	return l
}

// invalidate makes every cached index of name stale.
func (r *Registry) invalidate(name string) {
	r.mu.Lock()
	r.generations[name]++
	r.mu.Unlock()
}

// storeComplete reports whether dir holds a non-empty payload and sidecar.
func storeComplete(dir string) bool {
	for _, f := range []string{vector.VectorsFile, vector.ChunksFile} {
		fi, err := os.Stat(filepath.Join(dir, f))
		if err != nil || !fi.Mode().IsRegular() || fi.Size() == 0 {
			return false
		}
	}
	return true
}

// present returns NotFound when dir is missing or empty.
func present(dir, op, name string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.NotFound(op, name, nil)
	}
	if err != nil {
		return apperr.IO(op, name, err)
	}
	if len(entries) == 0 {
		return apperr.NotFound(op, name, nil)
	}
	return nil
}

func readManifest(ctx context.Context, dir string) (*storage.Manifest, error) {
	sidecar, err := storage.OpenSQLiteChunkStore(filepath.Join(dir, vector.ChunksFile))
	if err != nil {
		return nil, err
	}
	defer sidecar.Close()
	return sidecar.ReadManifest(ctx)
}
