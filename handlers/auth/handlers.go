package auth

import (
	"car-management/handlers"
	"car-management/service/accounts"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// AccountService is the part of accounts.Service the handlers use.
type AccountService interface {
	Signup(ctx context.Context, email, password, name string) (*accounts.Session, error)
	Login(ctx context.Context, email, password string) (*accounts.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*accounts.Session, error)
	ExternalLogin(ctx context.Context, subject, email, name string) (*accounts.Session, error)
}

type (
	SignupRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}

	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refreshToken"`
	}
)

// maxAuthBody caps the JSON bodies of the auth endpoints.
const maxAuthBody = 64 << 10

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(v); err != nil {
		handlers.RenderMessage(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func HandleSignup(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if !decode(w, r, &req) {
			return
		}
		session, err := svc.Signup(r.Context(), req.Email, req.Password, req.Name)
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, session)
	}
}

func HandleLogin(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decode(w, r, &req) {
			return
		}
		session, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.JSON(w, r, session)
	}
}

func HandleRefresh(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if !decode(w, r, &req) {
			return
		}
		session, err := svc.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.JSON(w, r, session)
	}
}
