package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils/logging"
	"github.com/google/uuid"
)

type SweepResult struct {
	Scanned int         `json:"scanned"`
	Orphans []uuid.UUID `json:"orphans"`
	Deleted int         `json:"deleted"`
}

// SweepOrphanBlobs finds blobs that no submission or circular references. Blobs younger than
// minAge are skipped since their record may still be in the middle of being written. Orphans
// are only deleted if remove is set.
func (r *Registry) SweepOrphanBlobs(ctx context.Context, minAge time.Duration, remove bool) (SweepResult, error) {
	ids, err := r.store.List(ctx)
	if err != nil {
		return SweepResult{}, blobError("error listing blobs", err)
	}

	result := SweepResult{Scanned: len(ids)}
	cutoff := time.Now().Add(-minAge)

	for _, id := range ids {
		referenced, err := schema.BlobReferenced(id, r.db.WithContext(ctx))
		if err != nil {
			return result, fmt.Errorf("error checking blob references: %w", err)
		}
		if referenced {
			continue
		}

		info, body, err := r.store.Retrieve(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrBlobNotFound) {
				continue
			}
			return result, blobError("error reading blob info", err)
		}
		body.Close()

		if info.CreatedAt.After(cutoff) {
			continue
		}

		result.Orphans = append(result.Orphans, id)
		slog.Info("found orphaned blob", logging.Code(logging.BLOB_SWEEP), "blob_id", id, "size", info.Size, "created_at", info.CreatedAt)

		if !remove {
			continue
		}

		if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			return result, blobError("error deleting orphaned blob", err)
		}
		result.Deleted++
		orphanBlobsDiscarded.Inc()
	}

	slog.Info("blob sweep complete", logging.Code(logging.BLOB_SWEEP), "scanned", result.Scanned, "orphans", len(result.Orphans), "deleted", result.Deleted)
	return result, nil
}
