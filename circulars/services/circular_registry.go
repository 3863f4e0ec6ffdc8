package services

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/edufleetexchange-art/Circularnest/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	DefaultMaxUploadBytes        = 50 * 1024 * 1024
	DefaultGuestUploadsPerMinute = 10
)

type Options struct {
	MaxUploadBytes        int64
	GuestUploadsPerMinute int
}

type CircularRegistry struct {
	circular CircularService
	pending  PendingService
	user     UserService

	registry *registry.Registry
	stop     chan bool
}

func NewCircularRegistry(registry *registry.Registry, store storage.BlobStore, userAuth auth.IdentityProvider, options Options) CircularRegistry {
	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = DefaultMaxUploadBytes
	}

	return CircularRegistry{
		circular: CircularService{
			registry:       registry,
			store:          store,
			userAuth:       userAuth,
			maxUploadBytes: options.MaxUploadBytes,
		},
		pending: PendingService{
			registry:              registry,
			store:                 store,
			userAuth:              userAuth,
			maxUploadBytes:        options.MaxUploadBytes,
			guestUploadsPerMinute: options.GuestUploadsPerMinute,
		},
		user:     UserService{userAuth: userAuth},
		registry: registry,
		stop:     make(chan bool, 1),
	}
}

func (c *CircularRegistry) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/circulars", c.circular.Routes())
	r.Mount("/pending", c.pending.Routes())
	r.Mount("/auth", c.user.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

func (c *CircularRegistry) sweep(minAge time.Duration) {
	if _, err := c.registry.SweepOrphanBlobs(context.Background(), minAge, true); err != nil {
		slog.Error("orphan sweep: failed", logging.Code(logging.BLOB_SWEEP), "error", err)
	}
}

// OrphanSweep periodically deletes blobs that no submission or circular references and
// that are older than minAge. It runs until StopOrphanSweep is called.
func (c *CircularRegistry) OrphanSweep(interval, minAge time.Duration) {
	slog.Info("orphan sweep: starting", logging.Code(logging.BLOB_SWEEP), "interval", interval, "min_age", minAge)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(minAge)
		case <-c.stop:
			slog.Info("orphan sweep: process stopped", logging.Code(logging.BLOB_SWEEP))
			return
		}
	}
}

func (c *CircularRegistry) StopOrphanSweep() {
	close(c.stop)
}
