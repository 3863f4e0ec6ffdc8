package versions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/*
 * Migrations work on snapshots of the tables as they were at that version, so that later
 * changes to the schema package do not change what an old migration does.
 */

type userV1 struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`

	InstitutionName string `gorm:"size:300"`
	ContactPerson   string `gorm:"size:200"`
	Phone           string `gorm:"size:50"`
	Address         string
	City            string `gorm:"size:100"`
	State           string `gorm:"size:100"`
	Pincode         string `gorm:"size:20"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userV1) TableName() string { return "users" }

type DocumentV1 struct {
	Title       string `gorm:"size:300;not null"`
	OrderDate   *time.Time
	Description string `gorm:"not null"`
	Category    string `gorm:"size:100;not null;index"`

	BlobId   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	FileName string    `gorm:"size:500;not null"`
	FileSize int64     `gorm:"not null"`

	UserId     *uuid.UUID `gorm:"type:uuid;index"`
	GuestName  string     `gorm:"size:200"`
	GuestEmail string     `gorm:"size:254"`
}

type submissionV1 struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DocumentV1 `gorm:"embedded"`

	Status      string `gorm:"size:20;not null;index"`
	ReviewNotes string

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (submissionV1) TableName() string { return "submissions" }

type circularV1 struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DocumentV1 `gorm:"embedded"`

	IsPublished       bool `gorm:"not null"`
	IsApprovedByAdmin bool `gorm:"not null"`

	Status      string `gorm:"size:20;index"`
	ReviewNotes string

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (circularV1) TableName() string { return "circulars" }

func Migration_1_initial_schema(txn *gorm.DB) error {
	return txn.AutoMigrate(&userV1{}, &submissionV1{}, &circularV1{})
}

func Rollback_1_initial_schema(txn *gorm.DB) error {
	return txn.Migrator().DropTable(&circularV1{}, &submissionV1{}, &userV1{})
}
