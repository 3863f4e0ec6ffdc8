package versions

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reviews record the reviewing admin on the submission, and circulars made by a review point
// back at the submission they came from.

type submissionV2 struct {
	ReviewedBy *uuid.UUID `gorm:"type:uuid"`
}

func (submissionV2) TableName() string { return "submissions" }

type circularV2 struct {
	SourceSubmissionId *uuid.UUID `gorm:"type:uuid"`
}

func (circularV2) TableName() string { return "circulars" }

func Migration_2_review_tracking(txn *gorm.DB) error {
	if err := txn.Migrator().AddColumn(&submissionV2{}, "ReviewedBy"); err != nil {
		return err
	}
	return txn.Migrator().AddColumn(&circularV2{}, "SourceSubmissionId")
}

func Rollback_2_review_tracking(txn *gorm.DB) error {
	if err := txn.Migrator().DropColumn(&circularV2{}, "SourceSubmissionId"); err != nil {
		return err
	}
	return txn.Migrator().DropColumn(&submissionV2{}, "ReviewedBy")
}
