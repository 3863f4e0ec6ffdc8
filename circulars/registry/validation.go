package registry

import (
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const pdfContentType = "application/pdf"

type DocumentFields struct {
	Title       string
	OrderDate   *time.Time
	Description string
	Category    string
}

func (f *DocumentFields) normalize() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Category = strings.TrimSpace(f.Category)

	if f.Title == "" || f.Description == "" || f.Category == "" {
		return newError(ErrValidation, "Please provide title, description, and category")
	}
	return nil
}

// Upload is a file sent by a client. Data is consumed by the blob store.
type Upload struct {
	Name        string
	ContentType string
	Data        io.Reader
}

func (u *Upload) validate() error {
	if u == nil || u.Data == nil || strings.TrimSpace(u.Name) == "" {
		return newError(ErrValidation, "Please upload a PDF file")
	}
	if !isPdf(u.Name, u.ContentType) {
		return newError(ErrValidation, "Only PDF files are allowed")
	}
	return nil
}

func isPdf(name, contentType string) bool {
	return strings.HasPrefix(contentType, pdfContentType) || strings.EqualFold(filepath.Ext(name), ".pdf")
}

func validateGuestEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email != "" && !emailRegex.MatchString(email) {
		return "", newError(ErrValidation, "Invalid email format")
	}
	return email, nil
}
