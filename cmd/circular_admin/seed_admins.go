package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type adminSeed struct {
	Email           string `yaml:"email"`
	Password        string `yaml:"password"`
	InstitutionName string `yaml:"institutionName"`
	ContactPerson   string `yaml:"contactPerson"`
	Phone           string `yaml:"phone"`
}

type seedFile struct {
	Admins []adminSeed `yaml:"admins"`
}

func loadSeedFile(path string) (seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("error reading seed file: %w", err)
	}

	var seeds seedFile
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return seedFile{}, fmt.Errorf("error parsing seed file '%v': %w", path, err)
	}

	for i, admin := range seeds.Admins {
		if strings.TrimSpace(admin.Email) == "" || admin.Password == "" {
			return seedFile{}, fmt.Errorf("admin %d in '%v' must have an email and a password", i, path)
		}
	}

	return seeds, nil
}

type seedResult struct {
	Email   string `json:"email"`
	Created bool   `json:"created"`
}

func seedAdmins(db *gorm.DB, seeds seedFile) ([]seedResult, error) {
	results := make([]seedResult, 0, len(seeds.Admins))
	for _, admin := range seeds.Admins {
		created, err := auth.AddAdminToDb(db, admin.Email, admin.Password, auth.UserProfile{
			InstitutionName: admin.InstitutionName,
			ContactPerson:   admin.ContactPerson,
			Phone:           admin.Phone,
		})
		if err != nil {
			return results, fmt.Errorf("error seeding admin '%v': %w", admin.Email, err)
		}
		results = append(results, seedResult{Email: auth.NormalizeEmail(admin.Email), Created: created})
	}
	return results, nil
}

func newSeedAdminsCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-admins",
		Short: "Create the admin accounts listed in a yaml file, skipping existing emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			seeds, err := loadSeedFile(file)
			if err != nil {
				return err
			}

			db, err := opts.openDb()
			if err != nil {
				return err
			}

			results, err := seedAdmins(db, seeds)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd, results)
			}
			for _, result := range results {
				status := "exists"
				if result.Created {
					status = "created"
				}
				if err := writePlain(cmd, "%s: %s\n", result.Email, status); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "yaml file listing admins (required)")
	return cmd
}
