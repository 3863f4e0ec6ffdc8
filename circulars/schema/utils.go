package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrCircularNotFound   = errors.New("circular not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by email", "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetSubmission(submissionId uuid.UUID, db *gorm.DB) (Submission, error) {
	var submission Submission

	result := db.First(&submission, "id = ?", submissionId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return submission, ErrSubmissionNotFound
		}
		slog.Error("sql error in get submission", "submission_id", submissionId, "error", result.Error)
		return submission, ErrDbAccessFailed
	}

	return submission, nil
}

func GetCircular(circularId uuid.UUID, db *gorm.DB) (Circular, error) {
	var circular Circular

	result := db.First(&circular, "id = ?", circularId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return circular, ErrCircularNotFound
		}
		slog.Error("sql error in get circular", "circular_id", circularId, "error", result.Error)
		return circular, ErrDbAccessFailed
	}

	return circular, nil
}

// BlobReferenced reports if any submission or circular still points at blobId.
func BlobReferenced(blobId uuid.UUID, db *gorm.DB) (bool, error) {
	var count int64
	if err := db.Model(&Submission{}).Where("blob_id = ?", blobId).Count(&count).Error; err != nil {
		slog.Error("sql error counting submissions for blob", "blob_id", blobId, "error", err)
		return false, ErrDbAccessFailed
	}
	if count > 0 {
		return true, nil
	}
	if err := db.Model(&Circular{}).Where("blob_id = ?", blobId).Count(&count).Error; err != nil {
		slog.Error("sql error counting circulars for blob", "blob_id", blobId, "error", err)
		return false, ErrDbAccessFailed
	}
	return count > 0, nil
}
