package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const seedYaml = `admins:
  - email: Head@District.test
    password: head_password
    institutionName: District Office
  - email: deputy@district.test
    password: deputy_password
`

func TestSeedAdmins(t *testing.T) {
	dir := t.TempDir()
	dbUri := "sqlite://" + filepath.Join(dir, "admin.db")
	seedPath := filepath.Join(dir, "admins.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYaml), 0644))

	out, err := runCmd(t, "seed-admins", "--db-uri", dbUri, "--file", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "head@district.test: created")
	assert.Contains(t, out, "deputy@district.test: created")

	out, err = runCmd(t, "seed-admins", "--db-uri", dbUri, "--file", seedPath, "--json")
	require.NoError(t, err)
	var results []seedResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.False(t, results[0].Created)
	assert.False(t, results[1].Created)

	db, err := utils.OpenDatabase(dbUri, &gorm.Config{})
	require.NoError(t, err)
	user, err := schema.GetUserByEmail("head@district.test", db)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.Equal(t, "District Office", user.InstitutionName)
}

func TestSeedAdminsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "admins.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("admins:\n  - email: a@b.test\n"), 0644))

	_, err := runCmd(t, "seed-admins", "--db-uri", "sqlite://"+filepath.Join(dir, "admin.db"), "--file", seedPath)
	assert.ErrorContains(t, err, "must have an email and a password")

	_, err = runCmd(t, "seed-admins", "--db-uri", "sqlite://"+filepath.Join(dir, "admin.db"))
	assert.ErrorContains(t, err, "--file is required")
}

func TestSweepBlobs(t *testing.T) {
	dir := t.TempDir()
	dbUri := "sqlite://" + filepath.Join(dir, "sweep.db")
	shareDir := filepath.Join(dir, "share")

	db, err := utils.OpenDatabase(dbUri, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.Tables()...))

	store := storage.NewSharedDisk(shareDir)
	require.NoError(t, store.Init(context.Background()))

	orphan, err := store.Store(context.Background(), strings.NewReader("%PDF orphan"), "orphan.pdf", "application/pdf")
	require.NoError(t, err)

	submission, err := registry.New(db, store).SubmitAsGuest(context.Background(), registry.SubmitRequest{
		DocumentFields: registry.DocumentFields{Title: "Notice", Description: "Kept", Category: "Education"},
		File:           &registry.Upload{Name: "kept.pdf", ContentType: "application/pdf", Data: strings.NewReader("%PDF kept")},
	})
	require.NoError(t, err)

	sqlDb, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDb.Close())

	args := []string{"sweep-blobs", "--db-uri", dbUri, "--blob-backend", "disk", "--share-dir", shareDir, "--min-age", "0s"}

	out, err := runCmd(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "dry run: scanned=2 orphans=1 deleted=0")
	assert.Contains(t, out, orphan.Id.String())

	out, err = runCmd(t, append(args, "--delete", "--json")...)
	require.NoError(t, err)
	var result registry.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, submission.BlobId, ids[0])
}
