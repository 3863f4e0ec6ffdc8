package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

type CircularService struct {
	registry       *registry.Registry
	store          storage.BlobStore
	userAuth       auth.IdentityProvider
	maxUploadBytes int64
}

func (s *CircularService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Get("/", s.List)
		r.Get("/{circular_id}", s.Get)
		r.Get("/{circular_id}/download", s.Download)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.With(checkSufficientStorage(s.store)).Post("/upload", s.Upload)
		r.Put("/{circular_id}/status", s.UpdateStatus)
		r.Put("/{circular_id}", s.Update)
		r.Delete("/{circular_id}", s.Delete)
	})

	return r
}

type circularResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message,omitempty"`
	Circular CircularInfo `json:"circular"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *CircularService) Upload(w http.ResponseWriter, r *http.Request) {
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

	circular, err := s.registry.UploadCircular(r.Context(), registry.UploadRequest{DocumentFields: fields, File: form.file}, auth.PrincipalFromRequest(r))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, circularResponse{
		Success:  true,
		Message:  "Circular uploaded successfully",
		Circular: convertToCircularInfo(circular),
	})
}

type pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
}

type listCircularsResponse struct {
	Success    bool           `json:"success"`
	Circulars  []CircularInfo `json:"circulars"`
	Pagination pagination     `json:"pagination"`
}

func (s *CircularService) List(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(listMetric)
	defer timer.ObserveDuration()

	page, err := utils.QueryInt(r, "page", 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := utils.QueryInt(r, "limit", registry.DefaultCircularLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	result, err := s.registry.ListCirculars(r.Context(), registry.CircularFilter{
		Category: strings.TrimSpace(query.Get("category")),
		Status:   strings.TrimSpace(query.Get("status")),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, listCircularsResponse{
		Success:    true,
		Circulars:  convertToCircularInfos(result.Circulars),
		Pagination: pagination{Total: result.Total, Page: result.Page, Pages: result.Pages},
	})
}

func (s *CircularService) Get(w http.ResponseWriter, r *http.Request) {
	circularId, err := utils.URLParamUUID(r, "circular_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	circular, err := s.registry.GetCircular(r.Context(), circularId)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, circularResponse{Success: true, Circular: convertToCircularInfo(circular)})
}

func (s *CircularService) Download(w http.ResponseWriter, r *http.Request) {
	circularId, err := utils.URLParamUUID(r, "circular_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	download, err := s.registry.OpenCircularFile(r.Context(), circularId)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeDownload(w, download, "attachment")
}

// writeDownload streams a document to the client. Content-Length is the stored size, so a
// stream that fails part way is seen by the client as truncated.
func writeDownload(w http.ResponseWriter, download registry.Download, disposition string) {
	timer := prometheus.NewTimer(downloadMetric)
	defer timer.ObserveDuration()

	defer download.Body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": download.FileName}))
	w.Header().Set("Content-Length", strconv.FormatInt(download.Size, 10))
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, download.Body)
	downloadBytes.Add(float64(written))
	if err != nil {
		slog.Error("error streaming document", "file_name", download.FileName, "written", written, "size", download.Size, "error", err)
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *CircularService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	circularId, err := utils.URLParamUUID(r, "circular_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	circular, err := s.registry.UpdateCircularStatus(r.Context(), circularId, strings.TrimSpace(params.Status))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, circularResponse{
		Success:  true,
		Message:  "Circular status updated successfully",
		Circular: convertToCircularInfo(circular),
	})
}

type updateCircularRequest struct {
	Title       *string         `json:"title"`
	OrderDate   json.RawMessage `json:"orderDate"`
	Description *string         `json:"description"`
	Category    *string         `json:"category"`
	IsPublished *bool           `json:"isPublished"`
	Status      *string         `json:"status"`
}

func (req *updateCircularRequest) toUpdate() (registry.CircularUpdate, error) {
	update := registry.CircularUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		IsPublished: req.IsPublished,
		Status:      req.Status,
	}

	if len(req.OrderDate) == 0 {
		return update, nil
	}

	update.SetOrderDate = true
	if string(req.OrderDate) == "null" {
		return update, nil
	}

	var value string
	if err := json.Unmarshal(req.OrderDate, &value); err != nil {
		return update, CodedError(fmt.Errorf("orderDate must be a string or null"), http.StatusBadRequest)
	}
	orderDate, err := parseOrderDate(value)
	if err != nil {
		return update, err
	}
	update.OrderDate = orderDate

	return update, nil
}

func (s *CircularService) Update(w http.ResponseWriter, r *http.Request) {
	circularId, err := utils.URLParamUUID(r, "circular_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateCircularRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	update, err := params.toUpdate()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	circular, err := s.registry.UpdateCircular(r.Context(), circularId, update)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, circularResponse{
		Success:  true,
		Message:  "Circular updated successfully",
		Circular: convertToCircularInfo(circular),
	})
}

func (s *CircularService) Delete(w http.ResponseWriter, r *http.Request) {
	circularId, err := utils.URLParamUUID(r, "circular_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.registry.DeleteCircular(r.Context(), circularId); err != nil {
		writeRegistryError(w, err)
		return
	}

	utils.WriteJsonResponse(w, messageResponse{Success: true, Message: "Circular deleted successfully"})
}
