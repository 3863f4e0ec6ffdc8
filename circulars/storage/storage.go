package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrStorageUnavailable = errors.New("blob storage unavailable")
	ErrStorageIO          = errors.New("blob storage io failure")
)

type BlobInfo struct {
	Id          uuid.UUID `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore holds opaque file contents addressed by generated ids. Identical contents stored
// twice yield two independent blobs.
type BlobStore interface {
	// Init prepares the backing medium. It may be called repeatedly, any other method fails
	// with ErrStorageUnavailable until one call succeeds.
	Init(ctx context.Context) error

	Store(ctx context.Context, data io.Reader, filename, contentType string) (BlobInfo, error)

	// Retrieve streams the blob contents. The reader fails with ErrStorageIO if the stored
	// contents end before the recorded size.
	Retrieve(ctx context.Context, id uuid.UUID) (BlobInfo, io.ReadCloser, error)

	// Delete removes the blob, returning ErrBlobNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	List(ctx context.Context) ([]uuid.UUID, error)
}

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// UsageReporter is implemented by stores that can report the capacity of their medium.
type UsageReporter interface {
	Usage() (UsageStats, error)
}

type initGate struct {
	mu    sync.Mutex
	ready atomic.Bool
}

func (g *initGate) check() error {
	if !g.ready.Load() {
		return ErrStorageUnavailable
	}
	return nil
}

func (g *initGate) init(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready.Load() {
		return nil
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	g.ready.Store(true)
	return nil
}

// sizedReader reports ErrStorageIO if the underlying reader fails or ends before size bytes.
type sizedReader struct {
	r      io.Reader
	closer io.Closer
	size   int64
	read   int64
}

func newSizedReader(r io.Reader, closer io.Closer, size int64) *sizedReader {
	return &sizedReader{r: r, closer: closer, size: size}
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)
	if s.read > s.size {
		return n, fmt.Errorf("%w: blob is larger than recorded size %d", ErrStorageIO, s.size)
	}
	if err == io.EOF {
		if s.read < s.size {
			return n, fmt.Errorf("%w: blob ended after %d of %d bytes", ErrStorageIO, s.read, s.size)
		}
		return n, io.EOF
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return n, nil
}

func (s *sizedReader) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

const (
	DiskBackend     = "disk"
	DatabaseBackend = "database"
)

// New returns the blob store for backend. The disk backend keeps blobs under shareDir, the
// database backend keeps them in chunked tables of db.
func New(backend string, db *gorm.DB, shareDir string) (BlobStore, error) {
	switch backend {
	case DiskBackend:
		if shareDir == "" {
			return nil, fmt.Errorf("the %v blob backend requires a share directory", DiskBackend)
		}
		return NewSharedDisk(shareDir), nil
	case "", DatabaseBackend:
		return NewDatabaseStorage(db), nil
	default:
		return nil, fmt.Errorf("unknown blob backend '%v', expected %v or %v", backend, DiskBackend, DatabaseBackend)
	}
}
