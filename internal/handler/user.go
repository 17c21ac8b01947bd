package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/repository"
	"github.com/botarena/apiserver/internal/service"
)

// UserHandler serves the account endpoints.
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// userIDParam extracts the {id} route parameter.
func userIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationField("id", "Invalid user ID.")
	}
	return id, nil
}

// parseListOptions reads pagination, filter, and order_by query parameters.
//
// Filters come as filter=field,op,value and may repeat. Ordering comes as
// order_by=field or order_by=asc,field / order_by=desc,field and may repeat.
// Field names are validated downstream against the projection allow-list.
func parseListOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions

	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationField("limit", "Invalid limit.")
		}
		opts.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationField("offset", "Invalid offset.")
		}
		opts.Offset = n
	}

	for _, raw := range q["filter"] {
		parts := strings.SplitN(raw, ",", 3)
		if len(parts) != 3 {
			return opts, apperror.ValidationField("filter", "Filter must be field,operation,value.")
		}
		opts.Filters = append(opts.Filters, repository.Filter{
			Field: parts[0],
			Op:    repository.FilterOp(parts[1]),
			Value: parts[2],
		})
	}

	for _, raw := range q["order_by"] {
		field := raw
		desc := false
		if before, after, found := strings.Cut(raw, ","); found {
			switch before {
			case "asc":
			case "desc":
				desc = true
			default:
				return opts, apperror.ValidationField("order_by", "Ordering must be asc or desc.")
			}
			field = after
		}
		opts.Sort = append(opts.Sort, repository.Sort{Field: field, Desc: desc})
	}

	return opts, nil
}

// HandleList serves GET /user.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	users, err := h.svc.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet serves GET /user/{id}. Auth is optional: a caller viewing their
// own profile gets the additional self-view fields.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var viewer *int64
	if ident, ok := auth.IdentityFromContext(r.Context()); ok {
		viewer = &ident.UserID
	}
	profile, err := h.svc.Get(r.Context(), id, viewer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleCreate serves POST /user: account setup for the logged-in user.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Login required."))
		return
	}
	var req service.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("Invalid JSON body."))
		return
	}
	msg, err := h.svc.CreateAccount(r.Context(), ident.UserID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}

// HandleUpdate serves PUT /user/{id}.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Login required."))
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, apperror.ValidationFailed("Invalid JSON body."))
		return
	}
	msg, err := h.svc.Update(r.Context(), ident.UserID, id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleDelete serves DELETE /user/{id}. Reaching here requires the admin
// middleware; the service re-checks.
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Login required."))
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), ident.UserID, id, ident.IsAdmin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted."})
}

// HandleVerify serves POST /user/{id}/verify. The browser lands here from
// the emailed link, so the code arrives form-encoded and no session is
// required.
func (h *UserHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, apperror.ValidationFailed("Invalid form body."))
		return
	}
	msg, err := h.svc.VerifyEmail(r.Context(), id, r.FormValue("verification_code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleResendVerification serves POST /user/{id}/verify/resend.
func (h *UserHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Login required."))
		return
	}
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if ident.UserID != id {
		writeError(w, apperror.UserMismatch())
		return
	}
	msg, err := h.svc.ResendVerification(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// APIKeyResponse carries a freshly minted API key credential. The plaintext
// appears here once and is never retrievable again.
type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// HandleResetAPIKey serves POST /api_key and POST /user/{id}/api_key. The
// route without an {id} targets the caller.
func (h *UserHandler) HandleResetAPIKey(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Login required."))
		return
	}
	target := ident.UserID
	if chi.URLParam(r, "id") != "" {
		id, err := userIDParam(r)
		if err != nil {
			writeError(w, err)
			return
		}
		target = id
	}
	key, err := h.svc.ResetAPIKey(r.Context(), ident.UserID, target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, APIKeyResponse{APIKey: key})
}

// HandleHistory serves GET /user/{id}/history.
func (h *UserHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleSeason1 serves GET /user/{id}/season1.
func (h *UserHandler) HandleSeason1(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.svc.Season1(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleSubscribe serves POST /user/addsubscriber/{email}.
func (h *UserHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.svc.Subscribe(email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Subscribed."})
}

// HandleInvite serves POST /invitation/user/{email}.
func (h *UserHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeError(w, apperror.Unauthorized("Login required."))
		return
	}
	email := chi.URLParam(r, "email")
	if err := h.svc.InviteFriend(email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Invitation sent."})
}
