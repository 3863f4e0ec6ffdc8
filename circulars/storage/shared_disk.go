package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

type SharedDiskStorage struct {
	basepath string
	gate     initGate
}

func NewSharedDisk(basepath string) *SharedDiskStorage {
	slog.Info("creating new shared disk storage", "basepath", basepath)
	return &SharedDiskStorage{basepath: basepath}
}

func (s *SharedDiskStorage) fullpath(path string) string {
	return filepath.Join(s.basepath, path)
}

func (s *SharedDiskStorage) Init(ctx context.Context) error {
	return s.gate.init(func() error {
		fullpath := s.fullpath(blobsDir)
		if err := os.MkdirAll(fullpath, 0777); err != nil {
			slog.Error("error creating blob directory", "path", fullpath, "error", err)
			return fmt.Errorf("error creating blob directory %v: %w", fullpath, err)
		}
		return nil
	})
}

func (s *SharedDiskStorage) Store(ctx context.Context, data io.Reader, filename, contentType string) (BlobInfo, error) {
	if err := s.gate.check(); err != nil {
		return BlobInfo{}, err
	}

	info := BlobInfo{
		Id:          uuid.New(),
		FileName:    filename,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}

	dir := s.fullpath(BlobPath(info.Id))
	if err := os.MkdirAll(dir, 0777); err != nil {
		slog.Error("error creating blob directory", "path", dir, "error", err)
		return BlobInfo{}, fmt.Errorf("%w: error creating blob directory: %v", ErrStorageIO, err)
	}

	size, err := s.writeData(blobDataPath(info.Id), data)
	if err != nil {
		_ = os.RemoveAll(dir)
		return BlobInfo{}, err
	}
	info.Size = size

	// The info file is written last, a blob without one is treated as missing.
	infoData, err := json.Marshal(info)
	if err != nil {
		_ = os.RemoveAll(dir)
		return BlobInfo{}, fmt.Errorf("%w: error encoding blob info: %v", ErrStorageIO, err)
	}
	if err := os.WriteFile(s.fullpath(blobInfoPath(info.Id)), infoData, 0666); err != nil {
		slog.Error("error writing blob info", "blob_id", info.Id, "error", err)
		_ = os.RemoveAll(dir)
		return BlobInfo{}, fmt.Errorf("%w: error writing blob info: %v", ErrStorageIO, err)
	}

	return info, nil
}

func (s *SharedDiskStorage) writeData(path string, data io.Reader) (int64, error) {
	fullpath := s.fullpath(path)

	file, err := os.OpenFile(fullpath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		slog.Error("error opening file for writing", "path", fullpath, "error", err)
		return 0, fmt.Errorf("%w: error opening file %v: %v", ErrStorageIO, path, err)
	}
	defer file.Close()

	size, err := io.Copy(file, data)
	if err != nil {
		slog.Error("error writing to file", "path", fullpath, "error", err)
		return 0, fmt.Errorf("%w: error writing to file %v: %v", ErrStorageIO, path, err)
	}

	if err := file.Sync(); err != nil {
		slog.Error("error syncing file", "path", fullpath, "error", err)
		return 0, fmt.Errorf("%w: error syncing file %v: %v", ErrStorageIO, path, err)
	}

	return size, nil
}

func (s *SharedDiskStorage) readInfo(id uuid.UUID) (BlobInfo, error) {
	fullpath := s.fullpath(blobInfoPath(id))

	data, err := os.ReadFile(fullpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BlobInfo{}, ErrBlobNotFound
		}
		slog.Error("error reading blob info", "path", fullpath, "error", err)
		return BlobInfo{}, fmt.Errorf("%w: error reading blob info: %v", ErrStorageIO, err)
	}

	var info BlobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		slog.Error("error decoding blob info", "path", fullpath, "error", err)
		return BlobInfo{}, fmt.Errorf("%w: error decoding blob info: %v", ErrStorageIO, err)
	}

	return info, nil
}

func (s *SharedDiskStorage) Retrieve(ctx context.Context, id uuid.UUID) (BlobInfo, io.ReadCloser, error) {
	if err := s.gate.check(); err != nil {
		return BlobInfo{}, nil, err
	}

	info, err := s.readInfo(id)
	if err != nil {
		return BlobInfo{}, nil, err
	}

	fullpath := s.fullpath(blobDataPath(id))
	file, err := os.Open(fullpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BlobInfo{}, nil, ErrBlobNotFound
		}
		slog.Error("error opening file for read", "path", fullpath, "error", err)
		return BlobInfo{}, nil, fmt.Errorf("%w: error reading blob %v: %v", ErrStorageIO, id, err)
	}

	return info, newSizedReader(file, file, info.Size), nil
}

func (s *SharedDiskStorage) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.gate.check(); err != nil {
		return err
	}

	fullpath := s.fullpath(BlobPath(id))
	if _, err := os.Stat(fullpath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		slog.Error("error checking if blob exists", "path", fullpath, "error", err)
		return fmt.Errorf("%w: error checking blob %v: %v", ErrStorageIO, id, err)
	}

	if err := os.RemoveAll(fullpath); err != nil {
		slog.Error("error deleting blob", "path", fullpath, "error", err)
		return fmt.Errorf("%w: error deleting blob %v: %v", ErrStorageIO, id, err)
	}
	return nil
}

func (s *SharedDiskStorage) List(ctx context.Context) ([]uuid.UUID, error) {
	if err := s.gate.check(); err != nil {
		return nil, err
	}

	fullpath := s.fullpath(blobsDir)
	entries, err := os.ReadDir(fullpath)
	if err != nil {
		slog.Error("error listing blobs", "path", fullpath, "error", err)
		return nil, fmt.Errorf("%w: error listing blobs: %v", ErrStorageIO, err)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		id, err := uuid.Parse(entry.Name())
		if err != nil || !entry.IsDir() {
			slog.Warn("skipping unexpected entry in blob directory", "name", entry.Name())
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *SharedDiskStorage) Usage() (UsageStats, error) {
	var stat unix.Statfs_t

	err := unix.Statfs(s.basepath, &stat)
	if err != nil {
		slog.Error("error getting disk usage for shared storage", "path", s.basepath, "error", err)
		return UsageStats{}, fmt.Errorf("error getting disk usage stats: %w", err)
	}

	return UsageStats{
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
		FreeBytes:  stat.Bfree * uint64(stat.Bsize),
	}, nil
}

func (s *SharedDiskStorage) Location() string {
	return s.basepath
}
