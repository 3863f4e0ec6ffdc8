package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupProvider(t *testing.T) (*BasicIdentityProvider, *gorm.DB, *bytes.Buffer) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(schema.Tables()...))

	audit := &bytes.Buffer{}
	provider, err := NewBasicIdentityProvider(db, NewAuditLogger(audit), BasicProviderArgs{
		Secret:        []byte("test-secret"),
		TokenTTL:      time.Hour,
		AdminEmail:    "Admin@Example.com",
		AdminPassword: "admin-password",
	})
	require.NoError(t, err)

	return provider, db, audit
}

func TestPolicy(t *testing.T) {
	owner := schema.User{Id: uuid.New()}
	other := schema.User{Id: uuid.New()}
	admin := schema.User{Id: uuid.New(), IsAdmin: true}

	owned := &schema.Submission{}
	owned.SetSubmitter(schema.UserSubmitter{UserId: owner.Id})

	guestOwned := &schema.Submission{}
	guestOwned.SetSubmitter(schema.GuestSubmitter{Name: "Visitor"})

	guest := GuestPrincipal()

	assert.True(t, CanDeleteSubmission(PrincipalForUser(owner), owned))
	assert.False(t, CanDeleteSubmission(PrincipalForUser(other), owned))
	assert.True(t, CanDeleteSubmission(PrincipalForUser(admin), owned))
	assert.False(t, CanDeleteSubmission(guest, owned))

	assert.False(t, CanDeleteSubmission(PrincipalForUser(owner), guestOwned))
	assert.False(t, CanDeleteSubmission(guest, guestOwned))
	assert.True(t, CanDeleteSubmission(PrincipalForUser(admin), guestOwned))

	for _, check := range []func(Principal) bool{CanViewSubmissions, CanReview, CanManageCirculars} {
		assert.False(t, check(guest))
		assert.False(t, check(PrincipalForUser(owner)))
		assert.True(t, check(PrincipalForUser(admin)))
	}

	assert.False(t, CanViewOwnSubmissions(guest))
	assert.True(t, CanViewOwnSubmissions(PrincipalForUser(owner)))
	assert.True(t, CanViewOwnSubmissions(PrincipalForUser(admin)))
}

func TestInitialAdmin(t *testing.T) {
	provider, db, _ := setupProvider(t)

	result, err := provider.LoginWithEmail("admin@example.com", "admin-password")
	require.NoError(t, err)
	assert.True(t, result.User.IsAdmin)
	assert.NotEmpty(t, result.AccessToken)

	created, err := AddAdminToDb(db, "admin@example.com", "other", UserProfile{})
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, db.Model(&schema.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateUserAndLogin(t *testing.T) {
	provider, _, _ := setupProvider(t)

	result, err := provider.CreateUser(" School@Example.com ", "pwd", UserProfile{InstitutionName: " Springfield High "})
	require.NoError(t, err)
	assert.Equal(t, "school@example.com", result.User.Email)
	assert.Equal(t, "Springfield High", result.User.InstitutionName)
	assert.False(t, result.User.IsAdmin)

	_, err = provider.CreateUser("school@example.com", "pwd2", UserProfile{InstitutionName: "Other"})
	assert.ErrorIs(t, err, ErrEmailAlreadyInUse)

	_, err = provider.LoginWithEmail("school@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = provider.LoginWithEmail("nobody@example.com", "pwd")
	assert.ErrorIs(t, err, ErrUserNotFoundWithEmail)

	login, err := provider.LoginWithEmail("School@example.com", "pwd")
	require.NoError(t, err)
	assert.Equal(t, result.User.Id, login.User.Id)
}

func TestCreateUserPasswordTooLong(t *testing.T) {
	provider, _, _ := setupProvider(t)

	_, err := provider.CreateUser("long@example.com", strings.Repeat("p", 73), UserProfile{InstitutionName: "School"})
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = provider.CreateUser("long@example.com", strings.Repeat("p", 72), UserProfile{InstitutionName: "School"})
	assert.NoError(t, err)
}

func TestCreateUserConcurrentSignup(t *testing.T) {
	provider, db, _ := setupProvider(t)

	// Insert the same email just ahead of the new user, after the existence check has passed.
	var armed atomic.Bool
	err := db.Callback().Create().Before("gorm:create").Register("test:concurrent_signup", func(txn *gorm.DB) {
		if armed.CompareAndSwap(true, false) {
			competitor := schema.User{Id: uuid.New(), Email: "race@example.com"}
			require.NoError(t, txn.Session(&gorm.Session{NewDB: true}).Create(&competitor).Error)
		}
	})
	require.NoError(t, err)
	armed.Store(true)

	_, err = provider.CreateUser("race@example.com", "pwd", UserProfile{InstitutionName: "School"})
	assert.ErrorIs(t, err, ErrEmailAlreadyInUse)
}

func TestUpdateProfile(t *testing.T) {
	provider, _, _ := setupProvider(t)

	result, err := provider.CreateUser("school@example.com", "pwd", UserProfile{InstitutionName: "Springfield High", City: "Springfield"})
	require.NoError(t, err)

	profile := ProfileOf(result.User)
	profile.Phone = "555-0100"
	updated, err := provider.UpdateProfile(result.User.Id, profile)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", updated.Phone)
	assert.Equal(t, "Springfield", updated.City)

	_, err = provider.UpdateProfile(uuid.New(), profile)
	assert.ErrorIs(t, err, schema.ErrUserNotFound)
}

func newTestRouter(provider *BasicIdentityProvider) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(provider.AuthMiddleware()...)
		r.Get("/required", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(PrincipalFromRequest(r).Kind.String()))
		})
		r.With(AdminOnly()).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(provider.OptionalAuthMiddleware()...)
		r.Get("/optional", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(PrincipalFromRequest(r).Kind.String()))
		})
	})
	return r
}

func doRequest(router http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddlewares(t *testing.T) {
	provider, _, audit := setupProvider(t)
	router := newTestRouter(provider)

	admin, err := provider.LoginWithEmail("admin@example.com", "admin-password")
	require.NoError(t, err)
	user, err := provider.CreateUser("user@example.com", "pwd", UserProfile{InstitutionName: "School"})
	require.NoError(t, err)

	w := doRequest(router, "/required", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "/required", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "/required", user.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user", w.Body.String())
	assert.Contains(t, audit.String(), "user@example.com")

	w = doRequest(router, "/admin", user.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, "/admin", admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "/optional", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guest", w.Body.String())

	w = doRequest(router, "/optional", "not-a-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guest", w.Body.String())

	w = doRequest(router, "/optional", user.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user", w.Body.String())

	w = doRequest(router, "/optional", admin.AccessToken)
	assert.Equal(t, "admin", w.Body.String())
}

func TestExpiredTokenIsRejected(t *testing.T) {
	provider, _, _ := setupProvider(t)
	router := newTestRouter(provider)

	user, err := provider.CreateUser("user@example.com", "pwd", UserProfile{InstitutionName: "School"})
	require.NoError(t, err)

	expired, err := NewJwtManager([]byte("test-secret"), -time.Hour).CreateUserJwt(user.User.Id)
	require.NoError(t, err)

	w := doRequest(router, "/required", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "/optional", expired)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guest", w.Body.String())
}

func readAuditLines(t *testing.T, audit *bytes.Buffer) []map[string]interface{} {
	var lines []map[string]interface{}
	decoder := json.NewDecoder(audit)
	for decoder.More() {
		var line map[string]interface{}
		require.NoError(t, decoder.Decode(&line))
		lines = append(lines, line)
	}
	return lines
}

func TestAuditLogRecordsActions(t *testing.T) {
	provider, _, audit := setupProvider(t)

	r := chi.NewRouter()
	r.Route("/api/pending", func(r chi.Router) {
		r.Use(provider.AuthMiddleware()...)
		r.With(AdminOnly()).Put("/{submission_id}/approve", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
		r.Delete("/{submission_id}", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Cannot delete approved circulars", http.StatusForbidden)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
	})

	admin, err := provider.LoginWithEmail("admin@example.com", "admin-password")
	require.NoError(t, err)
	user, err := provider.CreateUser("user@example.com", "pwd", UserProfile{InstitutionName: "School"})
	require.NoError(t, err)

	submissionId := uuid.New().String()
	send := func(method, path, token string) {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	send(http.MethodPut, "/api/pending/"+submissionId+"/approve", admin.AccessToken)
	send(http.MethodPut, "/api/pending/"+submissionId+"/approve", user.AccessToken)
	send(http.MethodDelete, "/api/pending/"+submissionId, user.AccessToken)
	send(http.MethodGet, "/api/pending/", admin.AccessToken)

	lines := readAuditLines(t, audit)
	require.Len(t, lines, 4)

	assert.Equal(t, "submission.approve", lines[0]["action"])
	assert.Equal(t, "success", lines[0]["outcome"])
	assert.Equal(t, submissionId, lines[0]["submission_id"])
	assert.Equal(t, "admin@example.com", lines[0]["email"])
	assert.Equal(t, "admin", lines[0]["role"])

	assert.Equal(t, "submission.approve", lines[1]["action"])
	assert.Equal(t, "denied", lines[1]["outcome"])
	assert.Equal(t, float64(http.StatusForbidden), lines[1]["status"])
	assert.Equal(t, "user@example.com", lines[1]["email"])

	assert.Equal(t, "submission.delete", lines[2]["action"])
	assert.Equal(t, submissionId, lines[2]["submission_id"])

	assert.Equal(t, "submission.list", lines[3]["action"])
	assert.Equal(t, "error", lines[3]["outcome"])
	assert.NotContains(t, lines[3], "submission_id")
}

func TestAuditAction(t *testing.T) {
	for pattern, action := range map[string]string{
		"PUT /api/pending/{submission_id}/reject": "submission.reject",
		"GET /api/pending/my-submissions":         "submission.my-submissions",
		"POST /api/circulars/upload":              "circular.upload",
		"PUT /api/circulars/{circular_id}":        "circular.update",
		"PUT /api/circulars/{circular_id}/status": "circular.status",
		"DELETE /api/circulars/{circular_id}":     "circular.delete",
		"GET /api/circulars/{circular_id}":        "circular.view",
		"PUT /api/auth/profile":                   "account.profile",
	} {
		method, path, _ := strings.Cut(pattern, " ")
		assert.Equal(t, action, auditAction(method, path), pattern)
	}
}
