package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
)

const (
	uploadFileField = "file"
	maxFieldBytes   = 64 * 1024
)

func getMultipartBoundary(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return "", CodedError(fmt.Errorf("missing 'Content-Type' header"), http.StatusBadRequest)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", CodedError(fmt.Errorf("error parsing media type in request: %w", err), http.StatusBadRequest)
	}
	if mediaType != "multipart/form-data" {
		return "", CodedError(fmt.Errorf("expected media type to be 'multipart/form-data'"), http.StatusBadRequest)
	}

	boundary, ok := params["boundary"]
	if !ok {
		return "", CodedError(fmt.Errorf("missing 'boundary' parameter in 'Content-Type' header"), http.StatusBadRequest)
	}

	return boundary, nil
}

// uploadForm is a parsed multipart upload. The file part is spooled to a temporary file so
// that form fields sent after it are still seen before the file is stored.
type uploadForm struct {
	fields map[string]string
	file   *registry.Upload
	spool  *os.File
}

func (f *uploadForm) value(key string) string {
	return f.fields[key]
}

func (f *uploadForm) Close() {
	if f.spool == nil {
		return
	}
	name := f.spool.Name()
	f.spool.Close()
	if err := os.Remove(name); err != nil {
		slog.Error("error removing upload spool file", "path", name, "error", err)
	}
}

func uploadTooLarge(err error, maxBytes int64) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return CodedError(fmt.Errorf("upload exceeds the maximum size of %d MB", maxBytes/(1024*1024)), http.StatusRequestEntityTooLarge)
	}
	return nil
}

func parseUploadForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*uploadForm, error) {
	boundary, err := getMultipartBoundary(r)
	if err != nil {
		return nil, err
	}

	reader := multipart.NewReader(http.MaxBytesReader(w, r.Body, maxBytes), boundary)
	form := &uploadForm{fields: map[string]string{}}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			form.Close()
			if tooLarge := uploadTooLarge(err, maxBytes); tooLarge != nil {
				return nil, tooLarge
			}
			return nil, CodedError(fmt.Errorf("error parsing multipart request: %w", err), http.StatusBadRequest)
		}

		if err := form.readPart(part, maxBytes); err != nil {
			part.Close()
			form.Close()
			return nil, err
		}
		part.Close()
	}

	if form.spool != nil {
		if _, err := form.spool.Seek(0, io.SeekStart); err != nil {
			form.Close()
			slog.Error("error rewinding upload spool file", "error", err)
			return nil, CodedError(errors.New("error reading uploaded file"), http.StatusInternalServerError)
		}
	}

	return form, nil
}

func (f *uploadForm) readPart(part *multipart.Part, maxBytes int64) error {
	if part.FormName() == uploadFileField && part.FileName() != "" {
		if f.spool != nil {
			return CodedError(errors.New("only one file can be uploaded"), http.StatusBadRequest)
		}

		spool, err := os.CreateTemp("", "circular-upload-*")
		if err != nil {
			slog.Error("error creating upload spool file", "error", err)
			return CodedError(errors.New("error saving uploaded file"), http.StatusInternalServerError)
		}
		f.spool = spool

		if _, err := io.Copy(spool, part); err != nil {
			if tooLarge := uploadTooLarge(err, maxBytes); tooLarge != nil {
				return tooLarge
			}
			slog.Error("error saving uploaded file", "error", err)
			return CodedError(fmt.Errorf("error reading uploaded file: %w", err), http.StatusBadRequest)
		}

		f.file = &registry.Upload{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        spool,
		}
		return nil
	}

	value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		if tooLarge := uploadTooLarge(err, maxBytes); tooLarge != nil {
			return tooLarge
		}
		return CodedError(fmt.Errorf("error reading form field '%v': %w", part.FormName(), err), http.StatusBadRequest)
	}
	if len(value) > maxFieldBytes {
		return CodedError(fmt.Errorf("form field '%v' exceeds the maximum length of %d KB", part.FormName(), maxFieldBytes/1024), http.StatusBadRequest)
	}
	f.fields[part.FormName()] = string(value)
	return nil
}

func (f *uploadForm) documentFields() (registry.DocumentFields, error) {
	orderDate, err := parseOrderDate(f.value("orderDate"))
	if err != nil {
		return registry.DocumentFields{}, err
	}
	return registry.DocumentFields{
		Title:       f.value("title"),
		OrderDate:   orderDate,
		Description: f.value("description"),
		Category:    f.value("category"),
	}, nil
}

var orderDateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// parseOrderDate parses an optional date, an empty value means no date.
func parseOrderDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range orderDateLayouts {
		if date, err := time.Parse(layout, value); err == nil {
			date = date.UTC()
			return &date, nil
		}
	}
	return nil, CodedError(fmt.Errorf("invalid orderDate '%v', expected a date like 2006-01-02", value), http.StatusBadRequest)
}
