package versions

import (
	"path/filepath"
	"testing"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMigrationsReachCurrentSchema(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrate.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	migration := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	require.NoError(t, migration.Migrate())

	migrator := db.Migrator()
	for _, table := range append(schema.Tables(), &storage.BlobFile{}, &storage.BlobChunk{}) {
		assert.True(t, migrator.HasTable(table))
	}
	assert.True(t, migrator.HasColumn(&schema.Submission{}, "ReviewedBy"))
	assert.True(t, migrator.HasColumn(&schema.Circular{}, "SourceSubmissionId"))
	assert.True(t, migrator.HasColumn(&schema.User{}, "InstitutionName"))

	// Migrating an up to date database is a no-op.
	require.NoError(t, migration.Migrate())

	require.NoError(t, migration.RollbackLast())
	assert.False(t, migrator.HasTable(&storage.BlobFile{}))
	assert.True(t, migrator.HasTable(&schema.Circular{}))

	require.NoError(t, migration.RollbackLast())
	assert.False(t, migrator.HasColumn(&schema.Circular{}, "SourceSubmissionId"))
	assert.True(t, migrator.HasColumn(&schema.Circular{}, "IsPublished"))
}
