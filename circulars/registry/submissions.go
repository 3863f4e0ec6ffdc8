package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/utils/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmitRequest struct {
	DocumentFields
	GuestName  string
	GuestEmail string
	File       *Upload
}

// Submit stores a document for review. It is attributed to the principal's account if there
// is one, and to the guest name and email from the request otherwise.
func (r *Registry) Submit(ctx context.Context, req SubmitRequest, principal auth.Principal) (schema.Submission, error) {
	if userId, ok := principal.UserId(); ok {
		return r.submit(ctx, req, schema.UserSubmitter{UserId: userId})
	}
	return r.submit(ctx, req, schema.GuestSubmitter{Name: req.GuestName, Email: req.GuestEmail})
}

func (r *Registry) SubmitAsGuest(ctx context.Context, req SubmitRequest) (schema.Submission, error) {
	return r.submit(ctx, req, schema.GuestSubmitter{Name: req.GuestName, Email: req.GuestEmail})
}

func (r *Registry) submit(ctx context.Context, req SubmitRequest, submitter schema.Submitter) (schema.Submission, error) {
	if err := req.File.validate(); err != nil {
		return schema.Submission{}, err
	}
	if err := req.normalize(); err != nil {
		return schema.Submission{}, err
	}
	guestEmail, err := validateGuestEmail(req.GuestEmail)
	if err != nil {
		return schema.Submission{}, err
	}

	submitterKind := "user"
	if guest, ok := submitter.(schema.GuestSubmitter); ok {
		submitter = schema.GuestSubmitter{Name: strings.TrimSpace(guest.Name), Email: guestEmail}
		submitterKind = "guest"
	}

	info, err := r.storeUpload(ctx, req.File)
	if err != nil {
		return schema.Submission{}, err
	}

	submission := schema.Submission{
		Id: uuid.New(),
		Document: schema.Document{
			Title:       req.Title,
			OrderDate:   req.OrderDate,
			Description: req.Description,
			Category:    req.Category,
			BlobId:      info.Id,
			FileName:    req.File.Name,
			FileSize:    info.Size,
		},
		Status: schema.Pending,
	}
	submission.SetSubmitter(submitter)

	if err := r.db.WithContext(ctx).Create(&submission).Error; err != nil {
		slog.Error("sql error creating submission", logging.Code(logging.SUBMISSION_CREATE), "blob_id", info.Id, "error", err)
		r.discardBlob(ctx, info.Id)
		return schema.Submission{}, fmt.Errorf("error creating submission: %w", schema.ErrDbAccessFailed)
	}

	submissionsCreated.WithLabelValues(submitterKind).Inc()
	slog.Info("submission created", logging.Code(logging.SUBMISSION_CREATE), "submission_id", submission.Id, "blob_id", info.Id, "submitter", submitterKind)

	return submission, nil
}

func (r *Registry) Approve(ctx context.Context, submissionId uuid.UUID, reviewer auth.Principal) (schema.Circular, error) {
	return r.review(ctx, submissionId, reviewer, schema.Approved, "")
}

func (r *Registry) Reject(ctx context.Context, submissionId uuid.UUID, reviewer auth.Principal, notes string) (schema.Circular, error) {
	return r.review(ctx, submissionId, reviewer, schema.Rejected, strings.TrimSpace(notes))
}

var errAlreadyReviewed = errors.New("This upload has already been reviewed")

// review moves a pending submission to a new circular. The status change is a conditional
// update, so of any number of concurrent reviews of one submission exactly one succeeds.
func (r *Registry) review(ctx context.Context, submissionId uuid.UUID, reviewer auth.Principal, decision, notes string) (schema.Circular, error) {
	if !auth.CanReview(reviewer) {
		return schema.Circular{}, newError(ErrForbidden, "only admins can review submissions")
	}
	reviewerId, _ := reviewer.UserId()

	var circular schema.Circular

	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.Submission{}).
			Where("id = ? AND status = ?", submissionId, schema.Pending).
			Updates(map[string]interface{}{
				"status":       decision,
				"reviewed_by":  reviewerId,
				"review_notes": notes,
			})
		if result.Error != nil {
			slog.Error("sql error updating submission status", "submission_id", submissionId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return r.explainNotPending(txn, submissionId)
		}

		submission, err := schema.GetSubmission(submissionId, txn)
		if err != nil {
			return err
		}

		sourceId := submission.Id
		circular = schema.Circular{
			Id:                 uuid.New(),
			Document:           submission.Document,
			IsPublished:        decision == schema.Approved,
			IsApprovedByAdmin:  decision == schema.Approved,
			Status:             decision,
			ReviewNotes:        notes,
			SourceSubmissionId: &sourceId,
		}

		if err := txn.Create(&circular).Error; err != nil {
			slog.Error("sql error creating circular from submission", "submission_id", submissionId, "error", err)
			return schema.ErrDbAccessFailed
		}

		if err := txn.Delete(&schema.Submission{}, "id = ?", submissionId).Error; err != nil {
			slog.Error("sql error deleting reviewed submission", "submission_id", submissionId, "error", err)
			return schema.ErrDbAccessFailed
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyReviewed) {
			return schema.Circular{}, withKind(ErrInvalidState, err)
		}
		return schema.Circular{}, recordError("error reviewing submission", err)
	}

	submissionsReviewed.WithLabelValues(decision).Inc()
	slog.Info("submission reviewed", logging.Code(logging.SUBMISSION_REVIEW), "submission_id", submissionId, "circular_id", circular.Id, "decision", decision, "reviewer", reviewerId)

	return circular, nil
}

// explainNotPending determines why a conditional status update matched no rows. A submission
// that is no longer pending, or that was already turned into a circular, has been reviewed.
func (r *Registry) explainNotPending(txn *gorm.DB, submissionId uuid.UUID) error {
	_, err := schema.GetSubmission(submissionId, txn)
	if err == nil {
		return errAlreadyReviewed
	}
	if !errors.Is(err, schema.ErrSubmissionNotFound) {
		return err
	}

	var reviewed int64
	if err := txn.Model(&schema.Circular{}).Where("source_submission_id = ?", submissionId).Count(&reviewed).Error; err != nil {
		slog.Error("sql error checking for reviewed submission", "submission_id", submissionId, "error", err)
		return schema.ErrDbAccessFailed
	}
	if reviewed > 0 {
		return errAlreadyReviewed
	}

	return schema.ErrSubmissionNotFound
}

// DeleteSubmission removes a submission that has not been approved, along with its file.
func (r *Registry) DeleteSubmission(ctx context.Context, submissionId uuid.UUID, requester auth.Principal) error {
	if !requester.IsAuthenticated() {
		return newError(ErrUnauthenticated, "Not authorized, no token")
	}

	submission, err := schema.GetSubmission(submissionId, r.db.WithContext(ctx))
	if err != nil {
		return recordError("error deleting submission", err)
	}

	if !auth.CanDeleteSubmission(requester, &submission) {
		return newError(ErrForbidden, "Not authorized to delete this submission")
	}

	if submission.Status == schema.Approved {
		return errCannotDeleteApproved()
	}

	// The record is claimed before its blob is touched. A review that commits first has
	// already removed the row, so the claim matches nothing and the blob is left alone.
	result := r.db.WithContext(ctx).Delete(&schema.Submission{}, "id = ? AND status <> ?", submissionId, schema.Approved)
	if result.Error != nil {
		slog.Error("sql error deleting submission", logging.Code(logging.SUBMISSION_DELETE), "submission_id", submissionId, "error", result.Error)
		return fmt.Errorf("error deleting submission: %w", schema.ErrDbAccessFailed)
	}
	if result.RowsAffected == 0 {
		if _, err := schema.GetSubmission(submissionId, r.db.WithContext(ctx)); err != nil {
			return recordError("error deleting submission", err)
		}
		return errCannotDeleteApproved()
	}

	if err := r.deleteBlob(ctx, submission.BlobId); err != nil {
		r.restoreSubmission(ctx, submission)
		return err
	}

	slog.Info("submission deleted", logging.Code(logging.SUBMISSION_DELETE), "submission_id", submissionId, "requester", requester.String())
	return nil
}

func errCannotDeleteApproved() error {
	return newError(ErrInvalidState, "Cannot delete approved circulars. Only administrators can manage published circulars.")
}

// restoreSubmission puts back a claimed submission whose blob could not be deleted.
func (r *Registry) restoreSubmission(ctx context.Context, submission schema.Submission) {
	err := r.db.WithContext(context.WithoutCancel(ctx)).Create(&submission).Error
	if err != nil {
		slog.Error("error restoring submission after failed blob delete, blob is orphaned", logging.Code(logging.SUBMISSION_DELETE), "submission_id", submission.Id, "blob_id", submission.BlobId, "error", err)
		return
	}
	slog.Warn("restored submission after failed blob delete", logging.Code(logging.SUBMISSION_DELETE), "submission_id", submission.Id)
}

// ListSubmissions returns submissions newest first, optionally restricted to one status.
func (r *Registry) ListSubmissions(ctx context.Context, status string, limit int) ([]schema.Submission, error) {
	if status != "" {
		if err := schema.CheckValidStatus(status); err != nil {
			return nil, withKind(ErrValidation, err)
		}
	}
	if limit <= 0 {
		limit = DefaultSubmissionLimit
	}

	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var submissions []schema.Submission
	if err := query.Find(&submissions).Error; err != nil {
		slog.Error("sql error listing submissions", "status", status, "error", err)
		return nil, fmt.Errorf("error listing submissions: %w", schema.ErrDbAccessFailed)
	}

	return submissions, nil
}

// SubmissionRecord is one entry of a user's submission history, either a submission still
// awaiting review or the circular it became.
type SubmissionRecord struct {
	Submission *schema.Submission
	Circular   *schema.Circular
}

func (s SubmissionRecord) CreatedAt() time.Time {
	if s.Submission != nil {
		return s.Submission.CreatedAt
	}
	return s.Circular.CreatedAt
}

// MySubmissions returns the user's unreviewed submissions together with the approved and
// rejected circulars made from their submissions, newest first.
func (r *Registry) MySubmissions(ctx context.Context, userId uuid.UUID) ([]SubmissionRecord, error) {
	db := r.db.WithContext(ctx)

	var submissions []schema.Submission
	if err := db.Where("user_id = ?", userId).Order("created_at DESC").Find(&submissions).Error; err != nil {
		slog.Error("sql error listing user submissions", "user_id", userId, "error", err)
		return nil, fmt.Errorf("error listing submissions: %w", schema.ErrDbAccessFailed)
	}

	var circulars []schema.Circular
	err := db.Where("user_id = ? AND status IN ?", userId, []string{schema.Approved, schema.Rejected}).
		Order("created_at DESC").Find(&circulars).Error
	if err != nil {
		slog.Error("sql error listing user circulars", "user_id", userId, "error", err)
		return nil, fmt.Errorf("error listing submissions: %w", schema.ErrDbAccessFailed)
	}

	records := make([]SubmissionRecord, 0, len(submissions)+len(circulars))
	for i := range submissions {
		records = append(records, SubmissionRecord{Submission: &submissions[i]})
	}
	for i := range circulars {
		records = append(records, SubmissionRecord{Circular: &circulars[i]})
	}

	slices.SortStableFunc(records, func(a, b SubmissionRecord) int {
		return b.CreatedAt().Compare(a.CreatedAt())
	})

	return records, nil
}

func (r *Registry) GetSubmission(ctx context.Context, submissionId uuid.UUID) (schema.Submission, error) {
	submission, err := schema.GetSubmission(submissionId, r.db.WithContext(ctx))
	if err != nil {
		return schema.Submission{}, recordError("error getting submission", err)
	}
	return submission, nil
}

func (r *Registry) OpenSubmissionFile(ctx context.Context, submissionId uuid.UUID) (Download, error) {
	submission, err := r.GetSubmission(ctx, submissionId)
	if err != nil {
		return Download{}, err
	}
	return r.openBlob(ctx, submission.BlobId, submission.FileName)
}
