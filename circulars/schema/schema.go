package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	Pending  = "pending"
	Approved = "approved"
	Rejected = "rejected"
)

const AnonymousGuest = "Anonymous"

func CheckValidStatus(status string) error {
	if status != Pending && status != Approved && status != Rejected {
		return fmt.Errorf("invalid status '%v', must be one of pending, approved, rejected", status)
	}
	return nil
}

// Document holds the descriptive fields shared by submissions and circulars. When a
// submission is reviewed the whole Document, including the blob reference, moves to the
// new circular.
type Document struct {
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

// Submitter identifies who sent a document, either a guest or an authenticated user.
type Submitter interface {
	isSubmitter()
}

type GuestSubmitter struct {
	Name  string
	Email string
}

type UserSubmitter struct {
	UserId uuid.UUID
}

func (GuestSubmitter) isSubmitter() {}
func (UserSubmitter) isSubmitter()  {}

func (d *Document) Submitter() Submitter {
	if d.UserId != nil {
		return UserSubmitter{UserId: *d.UserId}
	}
	return GuestSubmitter{Name: d.GuestName, Email: d.GuestEmail}
}

func (d *Document) SetSubmitter(s Submitter) {
	switch s := s.(type) {
	case UserSubmitter:
		userId := s.UserId
		d.UserId = &userId
		d.GuestName = ""
		d.GuestEmail = ""
	case GuestSubmitter:
		d.UserId = nil
		d.GuestName = s.Name
		if d.GuestName == "" {
			d.GuestName = AnonymousGuest
		}
		d.GuestEmail = s.Email
	}
}

func (d *Document) OwnedBy(userId uuid.UUID) bool {
	return d.UserId != nil && *d.UserId == userId
}

type Submission struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Document `gorm:"embedded"`

	Status      string     `gorm:"size:20;not null;index"`
	ReviewedBy  *uuid.UUID `gorm:"type:uuid"`
	ReviewNotes string

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

type Circular struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Document `gorm:"embedded"`

	IsPublished       bool `gorm:"not null"`
	IsApprovedByAdmin bool `gorm:"not null"`

	// Rows written before statuses existed have no status, they count as approved.
	Status      string `gorm:"size:20;index"`
	ReviewNotes string

	SourceSubmissionId *uuid.UUID `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// EffectiveStatus returns the status of the circular, treating legacy rows without a
// status as approved.
func (c *Circular) EffectiveStatus() string {
	if c.Status == "" {
		return Approved
	}
	return c.Status
}

// CircularOrigin records how a circular came to exist.
type CircularOrigin interface {
	isCircularOrigin()
}

type DirectUpload struct{}

type FromSubmission struct {
	SubmissionId uuid.UUID
}

func (DirectUpload) isCircularOrigin()   {}
func (FromSubmission) isCircularOrigin() {}

func (c *Circular) Origin() CircularOrigin {
	if c.SourceSubmissionId != nil {
		return FromSubmission{SubmissionId: *c.SourceSubmissionId}
	}
	return DirectUpload{}
}

func (c *Circular) DownloadUrl() string {
	return fmt.Sprintf("/api/circulars/%v/download", c.Id)
}

type User struct {
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

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func (u *User) Role() string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Tables lists every table owned by the registry, in migration order.
func Tables() []interface{} {
	return []interface{}{&User{}, &Submission{}, &Circular{}}
}
