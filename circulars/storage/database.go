package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Same chunk size GridFS uses by default.
const defaultChunkSize = 255 * 1024

type BlobFile struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	FileName    string    `gorm:"size:500;not null"`
	ContentType string    `gorm:"size:200"`
	Length      int64     `gorm:"not null"`
	ChunkSize   int       `gorm:"not null"`
	CreatedAt   time.Time
}

func (BlobFile) TableName() string {
	return "blob_files"
}

type BlobChunk struct {
	FileId uuid.UUID `gorm:"type:uuid;primaryKey"`
	N      int       `gorm:"primaryKey;autoIncrement:false"`
	Data   []byte    `gorm:"not null"`
}

func (BlobChunk) TableName() string {
	return "blob_chunks"
}

// DatabaseStorage keeps blobs in the registry database, split into fixed size chunks.
type DatabaseStorage struct {
	db        *gorm.DB
	chunkSize int
	gate      initGate
}

func NewDatabaseStorage(db *gorm.DB) *DatabaseStorage {
	slog.Info("creating new database blob storage", "chunk_size", defaultChunkSize)
	return &DatabaseStorage{db: db, chunkSize: defaultChunkSize}
}

func (s *DatabaseStorage) Init(ctx context.Context) error {
	return s.gate.init(func() error {
		if err := s.db.WithContext(ctx).AutoMigrate(&BlobFile{}, &BlobChunk{}); err != nil {
			slog.Error("error migrating blob tables", "error", err)
			return fmt.Errorf("error migrating blob tables: %w", err)
		}
		return nil
	})
}

func (s *DatabaseStorage) Store(ctx context.Context, data io.Reader, filename, contentType string) (BlobInfo, error) {
	if err := s.gate.check(); err != nil {
		return BlobInfo{}, err
	}

	file := BlobFile{
		Id:          uuid.New(),
		FileName:    filename,
		ContentType: contentType,
		ChunkSize:   s.chunkSize,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&file).Error; err != nil {
			slog.Error("sql error creating blob file", "blob_id", file.Id, "error", err)
			return fmt.Errorf("%w: error creating blob file: %v", ErrStorageIO, err)
		}

		buf := make([]byte, s.chunkSize)
		for n := 0; ; n++ {
			read, readErr := io.ReadFull(data, buf)
			if read > 0 {
				chunk := BlobChunk{FileId: file.Id, N: n, Data: bytes.Clone(buf[:read])}
				if err := txn.Create(&chunk).Error; err != nil {
					slog.Error("sql error writing blob chunk", "blob_id", file.Id, "chunk", n, "error", err)
					return fmt.Errorf("%w: error writing blob chunk: %v", ErrStorageIO, err)
				}
				file.Length += int64(read)
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			if readErr != nil {
				slog.Error("error reading blob contents", "blob_id", file.Id, "error", readErr)
				return fmt.Errorf("%w: error reading blob contents: %v", ErrStorageIO, readErr)
			}
		}

		if err := txn.Model(&file).Update("length", file.Length).Error; err != nil {
			slog.Error("sql error updating blob length", "blob_id", file.Id, "error", err)
			return fmt.Errorf("%w: error updating blob length: %v", ErrStorageIO, err)
		}
		return nil
	})
	if err != nil {
		return BlobInfo{}, err
	}

	return file.info(), nil
}

func (f *BlobFile) info() BlobInfo {
	return BlobInfo{
		Id:          f.Id,
		FileName:    f.FileName,
		ContentType: f.ContentType,
		Size:        f.Length,
		CreatedAt:   f.CreatedAt,
	}
}

func (s *DatabaseStorage) Retrieve(ctx context.Context, id uuid.UUID) (BlobInfo, io.ReadCloser, error) {
	if err := s.gate.check(); err != nil {
		return BlobInfo{}, nil, err
	}

	var file BlobFile
	if err := s.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BlobInfo{}, nil, ErrBlobNotFound
		}
		slog.Error("sql error retrieving blob file", "blob_id", id, "error", err)
		return BlobInfo{}, nil, fmt.Errorf("%w: error retrieving blob file: %v", ErrStorageIO, err)
	}

	chunks := &chunkReader{ctx: ctx, db: s.db, fileId: id}
	return file.info(), newSizedReader(chunks, nil, file.Length), nil
}

// chunkReader loads one chunk at a time, so only a single chunk is held in memory.
type chunkReader struct {
	ctx    context.Context
	db     *gorm.DB
	fileId uuid.UUID
	next   int
	buf    []byte
	done   bool
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.done {
			return 0, io.EOF
		}

		var chunk BlobChunk
		result := c.db.WithContext(c.ctx).Where("file_id = ? AND n = ?", c.fileId, c.next).Limit(1).Find(&chunk)
		if result.Error != nil {
			slog.Error("sql error reading blob chunk", "blob_id", c.fileId, "chunk", c.next, "error", result.Error)
			return 0, fmt.Errorf("error reading chunk %d: %w", c.next, result.Error)
		}
		if result.RowsAffected == 0 {
			c.done = true
			continue
		}
		c.buf = chunk.Data
		c.next++
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (s *DatabaseStorage) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.gate.check(); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.Delete(&BlobFile{}, "id = ?", id)
		if result.Error != nil {
			slog.Error("sql error deleting blob file", "blob_id", id, "error", result.Error)
			return fmt.Errorf("%w: error deleting blob file: %v", ErrStorageIO, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrBlobNotFound
		}

		if err := txn.Delete(&BlobChunk{}, "file_id = ?", id).Error; err != nil {
			slog.Error("sql error deleting blob chunks", "blob_id", id, "error", err)
			return fmt.Errorf("%w: error deleting blob chunks: %v", ErrStorageIO, err)
		}
		return nil
	})
}

func (s *DatabaseStorage) List(ctx context.Context) ([]uuid.UUID, error) {
	if err := s.gate.check(); err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&BlobFile{}).Pluck("id", &ids).Error; err != nil {
		slog.Error("sql error listing blob files", "error", err)
		return nil, fmt.Errorf("%w: error listing blobs: %v", ErrStorageIO, err)
	}
	return ids, nil
}
