package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// registryError attaches the http status for the kind of a registry error.
func registryError(err error) error {
	switch {
	case errors.Is(err, registry.ErrValidation):
		return CodedError(err, http.StatusBadRequest)
	case errors.Is(err, registry.ErrUnauthenticated):
		return CodedError(err, http.StatusUnauthorized)
	case errors.Is(err, registry.ErrForbidden):
		return CodedError(err, http.StatusForbidden)
	case errors.Is(err, registry.ErrNotFound):
		return CodedError(err, http.StatusNotFound)
	case errors.Is(err, registry.ErrInvalidState):
		return CodedError(err, http.StatusBadRequest)
	default:
		return CodedError(err, http.StatusInternalServerError)
	}
}

func writeRegistryError(w http.ResponseWriter, err error) {
	err = registryError(err)
	http.Error(w, err.Error(), GetResponseCode(err))
}

func checkDiskUsage(reporter storage.UsageReporter) error {
	stats, err := reporter.Usage()
	if err != nil {
		slog.Error("unable to get disk usage from storage", "error", err)
		return CodedError(errors.New("unable to get disk usage"), http.StatusInternalServerError)
	}
	oneMib := uint64(1024 * 1024)
	// Either 10% of the disk or 5Gb must stay free, whichever is smaller.
	threshold := min(stats.TotalBytes/10, 5*1024*oneMib)
	if stats.FreeBytes < threshold {
		used := (stats.TotalBytes - stats.FreeBytes) / oneMib
		total := stats.TotalBytes / oneMib
		return CodedError(fmt.Errorf("insufficient disk space available, usage: %d/%d Mib", used, total), http.StatusInsufficientStorage)
	}
	return nil
}

// checkSufficientStorage refuses uploads when the blob store reports a nearly full disk.
// Stores that cannot report usage are not checked.
func checkSufficientStorage(store storage.BlobStore) func(http.Handler) http.Handler {
	reporter, ok := store.(storage.UsageReporter)

	return func(next http.Handler) http.Handler {
		if !ok {
			return next
		}

		handler := func(w http.ResponseWriter, r *http.Request) {
			if err := checkDiskUsage(reporter); err != nil {
				slog.Error(err.Error())
				http.Error(w, err.Error(), GetResponseCode(err))
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}
