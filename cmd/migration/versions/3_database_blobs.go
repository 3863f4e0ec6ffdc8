package versions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type blobFileV3 struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	FileName    string    `gorm:"size:500;not null"`
	ContentType string    `gorm:"size:200"`
	Length      int64     `gorm:"not null"`
	ChunkSize   int       `gorm:"not null"`
	CreatedAt   time.Time
}

func (blobFileV3) TableName() string { return "blob_files" }

type blobChunkV3 struct {
	FileId uuid.UUID `gorm:"type:uuid;primaryKey"`
	N      int       `gorm:"primaryKey;autoIncrement:false"`
	Data   []byte    `gorm:"not null"`
}

func (blobChunkV3) TableName() string { return "blob_chunks" }

func Migration_3_database_blobs(txn *gorm.DB) error {
	return txn.AutoMigrate(&blobFileV3{}, &blobChunkV3{})
}

func Rollback_3_database_blobs(txn *gorm.DB) error {
	return txn.Migrator().DropTable(&blobChunkV3{}, &blobFileV3{})
}
