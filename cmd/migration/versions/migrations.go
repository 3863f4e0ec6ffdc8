package versions

import (
	"github.com/go-gormigrate/gormigrate/v2"
)

// Migrations lists every schema version in the order it must be applied.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID:       "1",
			Migrate:  Migration_1_initial_schema,
			Rollback: Rollback_1_initial_schema,
		},
		{
			ID:       "2",
			Migrate:  Migration_2_review_tracking,
			Rollback: Rollback_2_review_tracking,
		},
		{
			ID:       "3",
			Migrate:  Migration_3_database_blobs,
			Rollback: Rollback_3_database_blobs,
		},
	}
}
