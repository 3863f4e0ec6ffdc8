package services

import (
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/google/uuid"
)

type CircularInfo struct {
	Id                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	OrderDate          *time.Time `json:"orderDate,omitempty"`
	Description        string     `json:"description"`
	Category           string     `json:"category"`
	FileName           string     `json:"fileName"`
	FileSize           int64      `json:"fileSize"`
	FileUrl            string     `json:"fileUrl"`
	UploadedBy         *uuid.UUID `json:"uploadedBy"`
	GuestName          string     `json:"guestName,omitempty"`
	GuestEmail         string     `json:"guestEmail,omitempty"`
	IsPublished        bool       `json:"isPublished"`
	IsApprovedByAdmin  bool       `json:"isApprovedByAdmin"`
	Status             string     `json:"status"`
	ReviewNotes        string     `json:"reviewNotes,omitempty"`
	SourceSubmissionId *uuid.UUID `json:"sourceSubmissionId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func convertToCircularInfo(circular schema.Circular) CircularInfo {
	return CircularInfo{
		Id:                 circular.Id,
		Title:              circular.Title,
		OrderDate:          circular.OrderDate,
		Description:        circular.Description,
		Category:           circular.Category,
		FileName:           circular.FileName,
		FileSize:           circular.FileSize,
		FileUrl:            circular.DownloadUrl(),
		UploadedBy:         circular.UserId,
		GuestName:          circular.GuestName,
		GuestEmail:         circular.GuestEmail,
		IsPublished:        circular.IsPublished,
		IsApprovedByAdmin:  circular.IsApprovedByAdmin,
		Status:             circular.EffectiveStatus(),
		ReviewNotes:        circular.ReviewNotes,
		SourceSubmissionId: circular.SourceSubmissionId,
		CreatedAt:          circular.CreatedAt,
		UpdatedAt:          circular.UpdatedAt,
	}
}

func convertToCircularInfos(circulars []schema.Circular) []CircularInfo {
	infos := make([]CircularInfo, 0, len(circulars))
	for _, circular := range circulars {
		infos = append(infos, convertToCircularInfo(circular))
	}
	return infos
}

type SubmissionInfo struct {
	Id          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	OrderDate   *time.Time `json:"orderDate,omitempty"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	FileName    string     `json:"fileName"`
	FileSize    int64      `json:"fileSize"`
	UploadedBy  *uuid.UUID `json:"uploadedBy"`
	GuestName   string     `json:"guestName,omitempty"`
	GuestEmail  string     `json:"guestEmail,omitempty"`
	Status      string     `json:"status"`
	ReviewedBy  *uuid.UUID `json:"reviewedBy,omitempty"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func convertToSubmissionInfo(submission schema.Submission) SubmissionInfo {
	return SubmissionInfo{
		Id:          submission.Id,
		Title:       submission.Title,
		OrderDate:   submission.OrderDate,
		Description: submission.Description,
		Category:    submission.Category,
		FileName:    submission.FileName,
		FileSize:    submission.FileSize,
		UploadedBy:  submission.UserId,
		GuestName:   submission.GuestName,
		GuestEmail:  submission.GuestEmail,
		Status:      submission.Status,
		ReviewedBy:  submission.ReviewedBy,
		ReviewNotes: submission.ReviewNotes,
		CreatedAt:   submission.CreatedAt,
		UpdatedAt:   submission.UpdatedAt,
	}
}

// SubmissionHistoryEntry is either a submission awaiting review or the circular it became.
// Kind is "submission" or "circular".
type SubmissionHistoryEntry struct {
	Kind       string          `json:"kind"`
	Submission *SubmissionInfo `json:"submission,omitempty"`
	Circular   *CircularInfo   `json:"circular,omitempty"`
}

func convertToHistory(records []registry.SubmissionRecord) []SubmissionHistoryEntry {
	entries := make([]SubmissionHistoryEntry, 0, len(records))
	for _, record := range records {
		if record.Submission != nil {
			info := convertToSubmissionInfo(*record.Submission)
			entries = append(entries, SubmissionHistoryEntry{Kind: "submission", Submission: &info})
		} else {
			info := convertToCircularInfo(*record.Circular)
			entries = append(entries, SubmissionHistoryEntry{Kind: "circular", Circular: &info})
		}
	}
	return entries
}

type UserInfo struct {
	Id              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	InstitutionName string    `json:"institutionName"`
	ContactPerson   string    `json:"contactPerson"`
	Phone           string    `json:"phone"`
	Address         string    `json:"address"`
	City            string    `json:"city"`
	State           string    `json:"state"`
	Pincode         string    `json:"pincode"`
	CreatedAt       time.Time `json:"createdAt"`
}

func convertToUserInfo(user schema.User) UserInfo {
	return UserInfo{
		Id:              user.Id,
		Email:           user.Email,
		Role:            user.Role(),
		InstitutionName: user.InstitutionName,
		ContactPerson:   user.ContactPerson,
		Phone:           user.Phone,
		Address:         user.Address,
		City:            user.City,
		State:           user.State,
		Pincode:         user.Pincode,
		CreatedAt:       user.CreatedAt,
	}
}
