package auth

import (
	"fmt"
	"net/http"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/google/uuid"
)

type PrincipalKind int

const (
	Guest PrincipalKind = iota
	User
	Admin
)

func (k PrincipalKind) String() string {
	switch k {
	case User:
		return "user"
	case Admin:
		return "admin"
	default:
		return "guest"
	}
}

// Principal is the identity a request acts as. User is nil for guests.
type Principal struct {
	Kind PrincipalKind
	User *schema.User
}

func GuestPrincipal() Principal {
	return Principal{Kind: Guest}
}

func PrincipalForUser(user schema.User) Principal {
	if user.IsAdmin {
		return Principal{Kind: Admin, User: &user}
	}
	return Principal{Kind: User, User: &user}
}

// PrincipalFromRequest returns the principal for the user attached by the auth middlewares,
// or a guest if there is none.
func PrincipalFromRequest(r *http.Request) Principal {
	user, err := UserFromContext(r)
	if err != nil {
		return GuestPrincipal()
	}
	return PrincipalForUser(user)
}

func (p Principal) IsAdmin() bool {
	return p.Kind == Admin
}

func (p Principal) IsAuthenticated() bool {
	return p.Kind != Guest && p.User != nil
}

func (p Principal) UserId() (uuid.UUID, bool) {
	if !p.IsAuthenticated() {
		return uuid.Nil, false
	}
	return p.User.Id, true
}

func (p Principal) String() string {
	if id, ok := p.UserId(); ok {
		return fmt.Sprintf("%v %v", p.Kind, id)
	}
	return p.Kind.String()
}

// CanDeleteSubmission allows admins, and users deleting a submission they own. Guest
// submissions have no owner so only admins may delete them.
func CanDeleteSubmission(p Principal, submission *schema.Submission) bool {
	if p.IsAdmin() {
		return true
	}
	userId, ok := p.UserId()
	return ok && submission.OwnedBy(userId)
}

func CanViewSubmissions(p Principal) bool {
	return p.IsAdmin()
}

func CanViewOwnSubmissions(p Principal) bool {
	return p.IsAuthenticated()
}

func CanReview(p Principal) bool {
	return p.IsAdmin()
}

func CanManageCirculars(p Principal) bool {
	return p.IsAdmin()
}

func AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if !user.IsAdmin {
				http.Error(w, "Access denied. Admin only.", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
