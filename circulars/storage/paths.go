package storage

import (
	"path/filepath"

	"github.com/google/uuid"
)

const blobsDir = "blobs"

func BlobPath(blobId uuid.UUID) string {
	return filepath.Join(blobsDir, blobId.String())
}

func blobDataPath(blobId uuid.UUID) string {
	return filepath.Join(BlobPath(blobId), "data")
}

func blobInfoPath(blobId uuid.UUID) string {
	return filepath.Join(BlobPath(blobId), "info.json")
}
