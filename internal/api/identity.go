package api

import (
	"net/http"
	"time"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/domain"
	"example.com/tags/internal/identity"
)

// SignUpRequest is the payload for POST /v1/auth/signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// SignInRequest is the payload for POST /v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the payload for PATCH /v1/me.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
}

// UserView is the public profile of a user.
type UserView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Bio         string    `json:"bio"`
	Rating      float64   `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

// MeView adds private fields visible only to the profile owner.
type MeView struct {
	UserView
	Email string `json:"email"`
}

// CredentialsResponse is returned on sign up and sign in.
type CredentialsResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      MeView    `json:"user"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	creds, err := h.deps.Identity.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCredentialsResponse(creds))
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	creds, err := h.deps.Identity.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialsResponse(creds))
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.deps.Identity.SignOut(ctx, claims); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		h.writeServiceError(w, domain.ErrAuthRequired)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	user, err := h.deps.Identity.Profile(ctx, session.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeView(*user))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	user, err := h.deps.Identity.UpdateProfile(ctx, auth.SessionFromContext(r.Context()), req.DisplayName, req.Bio)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeView(*user))
}

func (h *Handler) userProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	user, err := h.deps.Identity.Profile(ctx, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func toCredentialsResponse(creds *identity.Credentials) CredentialsResponse {
	return CredentialsResponse{
		Token:     creds.Token,
		ExpiresAt: creds.ExpiresAt,
		User:      toMeView(creds.User),
	}
}

func toUserView(u domain.User) UserView {
	return UserView{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Bio:         u.Bio,
		Rating:      u.Rating,
		CreatedAt:   u.CreatedAt,
	}
}

func toMeView(u domain.User) MeView {
	return MeView{UserView: toUserView(u), Email: u.Email}
}
