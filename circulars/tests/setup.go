package tests

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/services"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	api      chi.Router
	db       *gorm.DB
	store    storage.BlobStore
	registry *registry.Registry
}

const (
	adminEmail    = "admin@circulars.test"
	adminPassword = "admin_password123"
)

type envOption func(*envConfig)

type envConfig struct {
	backend string
	options services.Options
}

func withDiskStorage() envOption {
	return func(c *envConfig) { c.backend = "disk" }
}

func withGuestLimit(perMinute int) envOption {
	return func(c *envConfig) { c.options.GuestUploadsPerMinute = perMinute }
}

func withMaxUpload(bytes int64) envOption {
	return func(c *envConfig) { c.options.MaxUploadBytes = bytes }
}

func setupTestEnv(t *testing.T, opts ...envOption) *testEnv {
	config := envConfig{
		backend: "database",
		options: services.Options{GuestUploadsPerMinute: 1000},
	}
	for _, opt := range opts {
		opt(&config)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "circulars.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(schema.Tables()...))

	var store storage.BlobStore
	if config.backend == "disk" {
		store = storage.NewSharedDisk(filepath.Join(t.TempDir(), "share"))
	} else {
		store = storage.NewDatabaseStorage(db)
	}
	require.NoError(t, store.Init(context.Background()))

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			TokenTTL:      time.Hour,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	require.NoError(t, err)

	reg := registry.New(db, store)
	circularRegistry := services.NewCircularRegistry(reg, store, userAuth, config.options)

	api := chi.NewRouter()
	api.Mount("/api", circularRegistry.Routes())

	return &testEnv{api: api, db: db, store: store, registry: reg}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(institution string) (client, error) {
	c := t.newClient()
	err := c.signup(institution+"@school.test", institution+"_password", institution)
	if err != nil {
		return client{}, err
	}
	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(adminEmail, adminPassword)
	return c, err
}
