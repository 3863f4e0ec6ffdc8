package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/services"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/edufleetexchange-art/Circularnest/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type registryEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`
	ShareDir    string `env:"SHARE_DIR,required"`
	BlobBackend string `env:"BLOB_BACKEND" envDefault:"database"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	CorsOrigins []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	MaxUploadMb           int64 `env:"MAX_UPLOAD_MB" envDefault:"50"`
	GuestUploadsPerMinute int   `env:"GUEST_UPLOADS_PER_MINUTE" envDefault:"10"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"6h"`
	SweepMinAge   time.Duration `env:"SWEEP_MIN_AGE" envDefault:"1h"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

/**
 * ==========================================================================
 * ==== All variables used by the registry server must be loaded here.   ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*registryEnv, error) {
	cfg := &registryEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be specified together")
	}
	if cfg.MaxUploadMb <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMb)
	}
	return cfg, nil
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.SetDefault(logging.NewJsonLogger(io.MultiWriter(logFile, os.Stderr), false))
	slog.Info("logging initialized", logging.Code(logging.SYSTEM), "log_file", logFile.Name())
}

func initDb(uri string) (*gorm.DB, error) {
	db, err := utils.OpenDatabase(uri, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(schema.Tables()...); err != nil {
		return nil, fmt.Errorf("error migrating db schema: %w", err)
	}

	return db, nil
}

// The reason we have a separate runApp function is because the defer calls don't
// run if we exit with log.Fatalf, so instead we return an err here and fail outside
func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	err = os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/circular_registry.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening audit log file: %w", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db, err := initDb(env.DatabaseUri)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	store, err := storage.New(env.BlobBackend, db, env.ShareDir)
	if err != nil {
		return err
	}
	if err := store.Init(context.Background()); err != nil {
		return fmt.Errorf("error initializing %v blob storage: %w", env.BlobBackend, err)
	}
	slog.Info("blob storage initialized", logging.Code(logging.SYSTEM), "backend", env.BlobBackend)

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(env.JwtSecret),
			TokenTTL:      env.TokenTTL,
			AdminEmail:    env.AdminEmail,
			AdminPassword: env.AdminPassword,
		},
	)
	if err != nil {
		return fmt.Errorf("error creating basic identity provider: %w", err)
	}

	circularRegistry := services.NewCircularRegistry(
		registry.New(db, store),
		store,
		identityProvider,
		services.Options{
			MaxUploadBytes:        env.MaxUploadMb * 1024 * 1024,
			GuestUploadsPerMinute: env.GuestUploadsPerMinute,
		},
	)

	if env.SweepInterval > 0 {
		go circularRegistry.OrphanSweep(env.SweepInterval, env.SweepMinAge)
		defer circularRegistry.StopOrphanSweep()
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   env.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api", circularRegistry.Routes())
	r.Handle("/metrics", promhttp.Handler())

	slog.Info("starting server", logging.Code(logging.SYSTEM), "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		return fmt.Errorf("listen and serve returned error: %w", err)
	}

	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatal(err)
	}
}
