package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type rootOptions struct {
	dbUri       string
	shareDir    string
	blobBackend string
	jsonOutput  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "circular_admin",
		Short:         "Maintenance commands for the circular registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbUri, "db-uri", os.Getenv("DATABASE_URI"), "database uri, postgres://… or sqlite://path (default $DATABASE_URI)")
	cmd.PersistentFlags().StringVar(&opts.shareDir, "share-dir", os.Getenv("SHARE_DIR"), "share directory of the disk blob backend (default $SHARE_DIR)")
	cmd.PersistentFlags().StringVar(&opts.blobBackend, "blob-backend", envOr("BLOB_BACKEND", storage.DatabaseBackend), "blob backend, disk or database")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newSeedAdminsCmd(opts),
		newSweepBlobsCmd(opts),
	)

	return cmd
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (o *rootOptions) openDb() (*gorm.DB, error) {
	db, err := utils.OpenDatabase(o.dbUri, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(schema.Tables()...); err != nil {
		return nil, fmt.Errorf("error migrating db schema: %w", err)
	}
	return db, nil
}

func (o *rootOptions) openStore(ctx context.Context, db *gorm.DB) (storage.BlobStore, error) {
	store, err := storage.New(o.blobBackend, db, o.shareDir)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("error initializing %v blob storage: %w", o.blobBackend, err)
	}
	return store, nil
}

func writeJSON(cmd *cobra.Command, value interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func writePlain(cmd *cobra.Command, format string, args ...interface{}) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return err
}
