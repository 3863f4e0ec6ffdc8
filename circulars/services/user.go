package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/edufleetexchange-art/Circularnest/circulars/auth"
	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/utils"
	"github.com/go-chi/chi/v5"
)

type UserService struct {
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Post("/signup", s.Signup)
		r.Post("/login", s.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/me", s.Me)
		r.Put("/profile", s.UpdateProfile)
	})

	return r
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Role            string `json:"role"`
	InstitutionName string `json:"institutionName"`
	ContactPerson   string `json:"contactPerson"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`
}

type authResponse struct {
	Success bool     `json:"success"`
	Token   string   `json:"token"`
	User    UserInfo `json:"user"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.EqualFold(strings.TrimSpace(params.Role), schema.RoleAdmin) {
		http.Error(w, "Cannot create admin accounts through signup", http.StatusForbidden)
		return
	}
	if strings.TrimSpace(params.Email) == "" || params.Password == "" {
		http.Error(w, "Please provide email and password", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(params.InstitutionName) == "" {
		http.Error(w, "Please provide institution name", http.StatusBadRequest)
		return
	}

	login, err := s.userAuth.CreateUser(params.Email, params.Password, auth.UserProfile{
		InstitutionName: params.InstitutionName,
		ContactPerson:   params.ContactPerson,
		Phone:           params.Phone,
		Address:         params.Address,
		City:            params.City,
		State:           params.State,
		Pincode:         params.Pincode,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			http.Error(w, "Password must be at most 72 bytes", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, authResponse{
		Success: true,
		Token:   login.AccessToken,
		User:    convertToUserInfo(login.User),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.Email) == "" || params.Password == "" {
		http.Error(w, "Please provide email and password", http.StatusBadRequest)
		return
	}

	login, err := s.userAuth.LoginWithEmail(params.Email, params.Password)
	if err != nil {
		// Unknown emails and wrong passwords are reported the same way.
		if errors.Is(err, auth.ErrUserNotFoundWithEmail) || errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, authResponse{
		Success: true,
		Token:   login.AccessToken,
		User:    convertToUserInfo(login.User),
	})
}

type userResponse struct {
	Success bool     `json:"success"`
	User    UserInfo `json:"user"`
}

func (s *UserService) Me(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	utils.WriteJsonResponse(w, userResponse{Success: true, User: convertToUserInfo(user)})
}

type updateProfileRequest struct {
	InstitutionName *string `json:"institutionName"`
	ContactPerson   *string `json:"contactPerson"`
	Phone           *string `json:"phone"`
	Address         *string `json:"address"`
	City            *string `json:"city"`
	State           *string `json:"state"`
	Pincode         *string `json:"pincode"`
}

// mergeInto overwrites the fields of profile that are present in the request.
func (req *updateProfileRequest) mergeInto(profile *auth.UserProfile) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&profile.InstitutionName, req.InstitutionName)
	set(&profile.ContactPerson, req.ContactPerson)
	set(&profile.Phone, req.Phone)
	set(&profile.Address, req.Address)
	set(&profile.City, req.City)
	set(&profile.State, req.State)
	set(&profile.Pincode, req.Pincode)
}

func (s *UserService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params updateProfileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	profile := auth.ProfileOf(user)
	params.mergeInto(&profile)

	if strings.TrimSpace(profile.InstitutionName) == "" {
		http.Error(w, "Institution name cannot be empty", http.StatusBadRequest)
		return
	}

	updated, err := s.userAuth.UpdateProfile(user.Id, profile)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, userResponse{Success: true, User: convertToUserInfo(updated)})
}
