package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
)

type PendingService struct {
	registry       *registry.Registry
	store          storage.BlobStore
	userAuth       auth.IdentityProvider
	maxUploadBytes int64

	guestUploadsPerMinute int
}

func (s *PendingService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(checkSufficientStorage(s.store))

		guest := r.With()
		if s.guestUploadsPerMinute > 0 {
			guest = r.With(httprate.LimitByIP(s.guestUploadsPerMinute, time.Minute))
		}
		guest.Post("/guest-upload", s.GuestUpload)

		r.With(s.userAuth.OptionalAuthMiddleware()...).Post("/upload", s.Upload)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/my-submissions", s.MySubmissions)
		r.Delete("/{submission_id}", s.Delete)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOnly())

			r.Get("/", s.List)
			r.Get("/{submission_id}/file", s.File)
			r.Put("/{submission_id}/approve", s.Approve)
			r.Put("/{submission_id}/reject", s.Reject)
		})
	})

	return r
}

type submissionResponse struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	PendingUpload SubmissionInfo `json:"pendingUpload"`
}

func (s *PendingService) submit(w http.ResponseWriter, r *http.Request, asGuest bool) {
	timer := prometheus.NewTimer(uploadMetric)
	defer timer.ObserveDuration()

	form, err := parseUploadForm(w, r, s.maxUploadBytes)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	defer form.Close()

	fields, err := form.documentFields()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	req := registry.SubmitRequest{
		DocumentFields: fields,
		GuestName:      form.value("guestName"),
		GuestEmail:     form.value("guestEmail"),
		File:           form.file,
	}

	var submission schema.Submission
	if asGuest {
		submission, err = s.registry.SubmitAsGuest(r.Context(), req)
	} else {
		submission, err = s.registry.Submit(r.Context(), req, auth.PrincipalFromRequest(r))
	}
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, submissionResponse{
		Success:       true,
		Message:       "Circular submitted successfully. It will be reviewed by an administrator.",
		PendingUpload: convertToSubmissionInfo(submission),
	})
}

func (s *PendingService) GuestUpload(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, true)
}

// Upload accepts a submission with or without a login. Without a valid token the submission
// is attributed to the guest fields of the form.
func (s *PendingService) Upload(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, false)
}

type listSubmissionsResponse struct {
	Success        bool             `json:"success"`
	PendingUploads []SubmissionInfo `json:"pendingUploads"`
}

func (s *PendingService) List(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.QueryInt(r, "limit", registry.DefaultSubmissionLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	submissions, err := s.registry.ListSubmissions(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")), limit)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	infos := make([]SubmissionInfo, 0, len(submissions))
	for _, submission := range submissions {
		infos = append(infos, convertToSubmissionInfo(submission))
	}

	utils.WriteJsonResponse(w, listSubmissionsResponse{Success: true, PendingUploads: infos})
}

type mySubmissionsResponse struct {
	Success        bool                     `json:"success"`
	PendingUploads []SubmissionHistoryEntry `json:"pendingUploads"`
}

func (s *PendingService) MySubmissions(w http.ResponseWriter, r *http.Request) {
	userId, ok := auth.PrincipalFromRequest(r).UserId()
	if !ok {
		http.Error(w, "Not authorized, no token", http.StatusUnauthorized)
		return
	}

	records, err := s.registry.MySubmissions(r.Context(), userId)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, mySubmissionsResponse{Success: true, PendingUploads: convertToHistory(records)})
}

func (s *PendingService) File(w http.ResponseWriter, r *http.Request) {
	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	download, err := s.registry.OpenSubmissionFile(r.Context(), submissionId)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeDownload(w, download, "inline")
}

type reviewResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Circular CircularInfo `json:"circular"`
}

type rejectResponse struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	RejectedCircular CircularInfo `json:"rejectedCircular"`
}

func (s *PendingService) Approve(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(reviewMetric)
	defer timer.ObserveDuration()

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	circular, err := s.registry.Approve(r.Context(), submissionId, auth.PrincipalFromRequest(r))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, reviewResponse{
		Success:  true,
		Message:  "Circular approved and published successfully",
		Circular: convertToCircularInfo(circular),
	})
}

type rejectRequest struct {
	ReviewNotes string `json:"reviewNotes"`
}

// parseOptionalBody decodes a JSON body that the client may leave out entirely.
func parseOptionalBody(r *http.Request, dest interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return CodedError(fmt.Errorf("error parsing request body: %w", err), http.StatusBadRequest)
}

func (s *PendingService) Reject(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(reviewMetric)
	defer timer.ObserveDuration()

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params rejectRequest
	if err := parseOptionalBody(r, &params); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	circular, err := s.registry.Reject(r.Context(), submissionId, auth.PrincipalFromRequest(r), params.ReviewNotes)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, rejectResponse{
		Success:          true,
		Message:          "Circular rejected",
		RejectedCircular: convertToCircularInfo(circular),
	})
}

func (s *PendingService) Delete(w http.ResponseWriter, r *http.Request) {
	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.registry.DeleteSubmission(r.Context(), submissionId, auth.PrincipalFromRequest(r))
	if err != nil {
		// Approved submissions belong to the admins, so the owner is refused rather than
		// told the request was malformed.
		if errors.Is(err, registry.ErrInvalidState) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, messageResponse{Success: true, Message: "Submission deleted successfully"})
}
