package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultSubmissionLimit = 100
	DefaultCircularLimit   = 100
)

// Registry owns the submission and circular records and the blobs they reference.
type Registry struct {
	db    *gorm.DB
	store storage.BlobStore
}

func New(db *gorm.DB, store storage.BlobStore) *Registry {
	return &Registry{db: db, store: store}
}

// Download is an open stream of a stored document.
type Download struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

func (r *Registry) storeUpload(ctx context.Context, upload *Upload) (storage.BlobInfo, error) {
	contentType := upload.ContentType
	if contentType == "" {
		contentType = pdfContentType
	}

	info, err := r.store.Store(ctx, upload.Data, upload.Name, contentType)
	if err != nil {
		slog.Error("error storing uploaded file", logging.Code(logging.BLOB_STORE), "file_name", upload.Name, "error", err)
		return storage.BlobInfo{}, blobError("error storing file", err)
	}

	slog.Info("stored uploaded file", logging.Code(logging.BLOB_STORE), "blob_id", info.Id, "size", info.Size)
	return info, nil
}

// discardBlob deletes a blob whose record could not be written. Failures are only logged,
// the blob is left for the orphan sweep.
func (r *Registry) discardBlob(ctx context.Context, blobId uuid.UUID) {
	err := r.store.Delete(context.WithoutCancel(ctx), blobId)
	if err != nil {
		slog.Error("error deleting blob after failed record write, blob is orphaned", logging.Code(logging.BLOB_DELETE), "blob_id", blobId, "error", err)
		return
	}
	slog.Info("deleted blob after failed record write", logging.Code(logging.BLOB_DELETE), "blob_id", blobId)
}

// deleteBlob deletes the blob of a record being removed, a blob that is already gone is not
// an error.
func (r *Registry) deleteBlob(ctx context.Context, blobId uuid.UUID) error {
	err := r.store.Delete(ctx, blobId)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			slog.Warn("blob already missing during delete", logging.Code(logging.BLOB_DELETE), "blob_id", blobId)
			return nil
		}
		slog.Error("error deleting blob", logging.Code(logging.BLOB_DELETE), "blob_id", blobId, "error", err)
		return blobError("error deleting file", err)
	}
	return nil
}

func (r *Registry) openBlob(ctx context.Context, blobId uuid.UUID, fileName string) (Download, error) {
	info, body, err := r.store.Retrieve(ctx, blobId)
	if err != nil {
		slog.Error("error retrieving blob", logging.Code(logging.BLOB_RETRIEVE), "blob_id", blobId, "error", err)
		return Download{}, blobError("error retrieving file", err)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = pdfContentType
	}

	return Download{FileName: fileName, ContentType: contentType, Size: info.Size, Body: body}, nil
}
