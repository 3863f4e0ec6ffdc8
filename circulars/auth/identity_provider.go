package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithEmail = errors.New("no user found for given email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("user already exists with this email")
	ErrPasswordTooLong       = errors.New("password must be at most 72 bytes")
)

const bcryptCost = 10

type LoginResult struct {
	User        schema.User
	AccessToken string
}

// UserProfile holds the institution details a user supplies at signup and may later edit.
type UserProfile struct {
	InstitutionName string
	ContactPerson   string
	Phone           string
	Address         string
	City            string
	State           string
	Pincode         string
}

func ProfileOf(user schema.User) UserProfile {
	return UserProfile{
		InstitutionName: user.InstitutionName,
		ContactPerson:   user.ContactPerson,
		Phone:           user.Phone,
		Address:         user.Address,
		City:            user.City,
		State:           user.State,
		Pincode:         user.Pincode,
	}
}

func (p UserProfile) apply(user *schema.User) {
	user.InstitutionName = strings.TrimSpace(p.InstitutionName)
	user.ContactPerson = strings.TrimSpace(p.ContactPerson)
	user.Phone = strings.TrimSpace(p.Phone)
	user.Address = strings.TrimSpace(p.Address)
	user.City = strings.TrimSpace(p.City)
	user.State = strings.TrimSpace(p.State)
	user.Pincode = strings.TrimSpace(p.Pincode)
}

type IdentityProvider interface {
	// AuthMiddleware rejects requests without a valid credential.
	AuthMiddleware() chi.Middlewares

	// OptionalAuthMiddleware attaches the user if a valid credential is present and
	// otherwise lets the request through as a guest.
	OptionalAuthMiddleware() chi.Middlewares

	LoginWithEmail(email, password string) (LoginResult, error)

	CreateUser(email, password string, profile UserProfile) (LoginResult, error)

	UpdateProfile(userId uuid.UUID, profile UserProfile) (schema.User, error)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("error encrypting password: %w", err)
	}
	return hashed, nil
}

// isDuplicateKey reports whether err is a unique constraint violation. Drivers only
// translate errors when the db was opened with TranslateError, so the dialector is asked
// directly as well.
func isDuplicateKey(db *gorm.DB, err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if translator, ok := db.Dialector.(gorm.ErrorTranslator); ok {
		return errors.Is(translator.Translate(err), gorm.ErrDuplicatedKey)
	}
	return false
}

// AddAdminToDb creates an admin account for email unless a user with that email already
// exists. It returns true if a new user was created.
func AddAdminToDb(db *gorm.DB, email, password string, profile UserProfile) (bool, error) {
	hashedPwd, err := HashPassword(password)
	if err != nil {
		return false, err
	}

	user := schema.User{
		Id:       uuid.New(),
		Email:    NormalizeEmail(email),
		Password: hashedPwd,
		IsAdmin:  true,
	}
	profile.apply(&user)

	created := false
	err = db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", user.Email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return nil
		}

		if err := txn.Create(&user).Error; err != nil {
			slog.Error("sql error creating admin user", "error", err)
			return schema.ErrDbAccessFailed
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("error adding admin to db: %w", err)
	}

	return created, nil
}

type requestContextKey string

const (
	UserRequestContextKey requestContextKey = "user"
)
