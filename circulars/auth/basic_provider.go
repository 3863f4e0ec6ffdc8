package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
}

type BasicProviderArgs struct {
	Secret        []byte
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (*BasicIdentityProvider, error) {
	if args.AdminEmail != "" {
		created, err := AddAdminToDb(db, args.AdminEmail, args.AdminPassword, UserProfile{})
		if err != nil {
			return nil, fmt.Errorf("error adding inital admin to db: %w", err)
		}
		if created {
			slog.Info("created initial admin", "email", args.AdminEmail)
		}
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret, args.TokenTTL),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

func (auth *BasicIdentityProvider) lookupUser(r *http.Request) (schema.User, int, error) {
	userId, err := UserIdFromContext(r)
	if err != nil {
		return schema.User{}, http.StatusUnauthorized, err
	}

	user, err := schema.GetUser(userId, auth.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return schema.User{}, http.StatusUnauthorized, err
		}
		return schema.User{}, http.StatusInternalServerError, fmt.Errorf("unable to find user %v: %w", userId, err)
	}

	return user, http.StatusOK, nil
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			user, code, err := auth.lookupUser(r)
			if err != nil {
				http.Error(w, err.Error(), code)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

// addUserToContextIfValid never rejects a request, any credential failure leaves it as a guest.
func (auth *BasicIdentityProvider) addUserToContextIfValid() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				if err != nil && !errors.Is(err, jwtauth.ErrNoTokenFound) {
					slog.Info("optional auth: invalid credential, continuing as guest", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			user, _, err := auth.lookupUser(r)
			if err != nil {
				slog.Info("optional auth: unable to resolve user, continuing as guest", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) OptionalAuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.addUserToContextIfValid()}
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	user, err := schema.GetUserByEmail(NormalizeEmail(email), auth.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return LoginResult{}, ErrUserNotFoundWithEmail
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{User: user, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) CreateUser(email, password string, profile UserProfile) (LoginResult, error) {
	hashedPwd, err := HashPassword(password)
	if err != nil {
		return LoginResult{}, err
	}

	newUser := schema.User{Id: uuid.New(), Email: NormalizeEmail(email), Password: hashedPwd, IsAdmin: false}
	profile.apply(&newUser)

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", newUser.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrEmailAlreadyInUse
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			// A concurrent signup for the same email committed after the check above.
			if isDuplicateKey(txn, result.Error) {
				return ErrEmailAlreadyInUse
			}
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("error creating new user: %w", err)
	}

	token, err := auth.jwtManager.CreateUserJwt(newUser.Id)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{User: newUser, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) UpdateProfile(userId uuid.UUID, profile UserProfile) (schema.User, error) {
	var user schema.User

	err := auth.db.Transaction(func(txn *gorm.DB) error {
		var err error
		user, err = schema.GetUser(userId, txn)
		if err != nil {
			return err
		}

		profile.apply(&user)

		result := txn.Model(&user).Select(
			"InstitutionName", "ContactPerson", "Phone", "Address", "City", "State", "Pincode",
		).Updates(&user)
		if result.Error != nil {
			slog.Error("sql error updating user profile", "user_id", userId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
	if err != nil {
		return schema.User{}, fmt.Errorf("error updating profile: %w", err)
	}

	return user, nil
}
