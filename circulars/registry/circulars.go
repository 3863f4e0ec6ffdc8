package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/utils/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CircularFilter struct {
	Category string
	Status   string
	Page     int
	Limit    int
}

type CircularPage struct {
	Circulars []schema.Circular
	Total     int64
	Page      int
	Pages     int
}

// apply restricts db to published circulars matching the filter. Legacy circulars without a
// status count as approved.
func (f CircularFilter) apply(db *gorm.DB) *gorm.DB {
	db = db.Model(&schema.Circular{}).Where("is_published = ?", true)
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	switch f.Status {
	case "":
	case schema.Approved:
		db = db.Where("(status = ? OR status IS NULL OR status = ?)", schema.Approved, "")
	default:
		db = db.Where("status = ?", f.Status)
	}
	return db
}

func (r *Registry) ListCirculars(ctx context.Context, filter CircularFilter) (CircularPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultCircularLimit
	}

	db := r.db.WithContext(ctx)

	var total int64
	if err := filter.apply(db).Count(&total).Error; err != nil {
		slog.Error("sql error counting circulars", "error", err)
		return CircularPage{}, fmt.Errorf("error listing circulars: %w", schema.ErrDbAccessFailed)
	}

	var circulars []schema.Circular
	err := filter.apply(db).
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&circulars).Error
	if err != nil {
		slog.Error("sql error listing circulars", "error", err)
		return CircularPage{}, fmt.Errorf("error listing circulars: %w", schema.ErrDbAccessFailed)
	}

	pages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))

	return CircularPage{Circulars: circulars, Total: total, Page: filter.Page, Pages: pages}, nil
}

func (r *Registry) GetCircular(ctx context.Context, circularId uuid.UUID) (schema.Circular, error) {
	circular, err := schema.GetCircular(circularId, r.db.WithContext(ctx))
	if err != nil {
		return schema.Circular{}, recordError("error getting circular", err)
	}
	return circular, nil
}

func (r *Registry) OpenCircularFile(ctx context.Context, circularId uuid.UUID) (Download, error) {
	circular, err := r.GetCircular(ctx, circularId)
	if err != nil {
		return Download{}, err
	}
	return r.openBlob(ctx, circular.BlobId, circular.FileName)
}

type UploadRequest struct {
	DocumentFields
	File *Upload
}

// UploadCircular publishes a document directly, without a review.
func (r *Registry) UploadCircular(ctx context.Context, req UploadRequest, uploader auth.Principal) (schema.Circular, error) {
	if !auth.CanManageCirculars(uploader) {
		return schema.Circular{}, newError(ErrForbidden, "only admins can upload circulars directly")
	}
	if err := req.File.validate(); err != nil {
		return schema.Circular{}, err
	}
	if err := req.normalize(); err != nil {
		return schema.Circular{}, err
	}

	info, err := r.storeUpload(ctx, req.File)
	if err != nil {
		return schema.Circular{}, err
	}

	circular := schema.Circular{
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
		IsPublished:       true,
		IsApprovedByAdmin: true,
		Status:            schema.Approved,
	}
	uploaderId, _ := uploader.UserId()
	circular.SetSubmitter(schema.UserSubmitter{UserId: uploaderId})

	if err := r.db.WithContext(ctx).Create(&circular).Error; err != nil {
		slog.Error("sql error creating circular", logging.Code(logging.CIRCULAR_UPLOAD), "blob_id", info.Id, "error", err)
		r.discardBlob(ctx, info.Id)
		return schema.Circular{}, fmt.Errorf("error creating circular: %w", schema.ErrDbAccessFailed)
	}

	slog.Info("circular uploaded", logging.Code(logging.CIRCULAR_UPLOAD), "circular_id", circular.Id, "blob_id", info.Id, "uploader", uploaderId)
	return circular, nil
}

// CircularUpdate lists the fields to change, nil fields are left as they are. Empty strings
// are ignored. OrderDate is only applied if SetOrderDate is true, a nil OrderDate then clears it.
type CircularUpdate struct {
	Title        *string
	Description  *string
	Category     *string
	SetOrderDate bool
	OrderDate    *time.Time
	IsPublished  *bool
	Status       *string
}

func nonEmpty(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*s)
	return trimmed, trimmed != ""
}

func (u CircularUpdate) validate() error {
	if status, ok := nonEmpty(u.Status); ok {
		if err := schema.CheckValidStatus(status); err != nil {
			return withKind(ErrValidation, err)
		}
	}
	return nil
}

func (u CircularUpdate) applyTo(circular *schema.Circular) {
	if title, ok := nonEmpty(u.Title); ok {
		circular.Title = title
	}
	if description, ok := nonEmpty(u.Description); ok {
		circular.Description = description
	}
	if category, ok := nonEmpty(u.Category); ok {
		circular.Category = category
	}
	if u.SetOrderDate {
		circular.OrderDate = u.OrderDate
	}
	if u.IsPublished != nil {
		circular.IsPublished = *u.IsPublished
	}
	if status, ok := nonEmpty(u.Status); ok {
		circular.Status = status
	}
}

func (r *Registry) UpdateCircular(ctx context.Context, circularId uuid.UUID, update CircularUpdate) (schema.Circular, error) {
	if err := update.validate(); err != nil {
		return schema.Circular{}, err
	}

	var circular schema.Circular
	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var err error
		circular, err = schema.GetCircular(circularId, txn)
		if err != nil {
			return err
		}

		update.applyTo(&circular)

		if err := txn.Save(&circular).Error; err != nil {
			slog.Error("sql error updating circular", logging.Code(logging.CIRCULAR_UPDATE), "circular_id", circularId, "error", err)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
	if err != nil {
		return schema.Circular{}, recordError("error updating circular", err)
	}

	slog.Info("circular updated", logging.Code(logging.CIRCULAR_UPDATE), "circular_id", circularId)
	return circular, nil
}

func (r *Registry) UpdateCircularStatus(ctx context.Context, circularId uuid.UUID, status string) (schema.Circular, error) {
	if err := schema.CheckValidStatus(status); err != nil {
		return schema.Circular{}, newError(ErrValidation, "Invalid status. Must be pending, approved, or rejected")
	}
	return r.UpdateCircular(ctx, circularId, CircularUpdate{Status: &status})
}

// DeleteCircular removes a circular and its file.
func (r *Registry) DeleteCircular(ctx context.Context, circularId uuid.UUID) error {
	circular, err := r.GetCircular(ctx, circularId)
	if err != nil {
		return err
	}

	if err := r.deleteBlob(ctx, circular.BlobId); err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Delete(&schema.Circular{}, "id = ?", circularId)
	if result.Error != nil {
		slog.Error("sql error deleting circular", logging.Code(logging.CIRCULAR_DELETE), "circular_id", circularId, "error", result.Error)
		return fmt.Errorf("error deleting circular: %w", schema.ErrDbAccessFailed)
	}

	slog.Info("circular deleted", logging.Code(logging.CIRCULAR_DELETE), "circular_id", circularId)
	return nil
}
