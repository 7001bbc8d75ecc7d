package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/contactservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *contactservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *contactservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Sync handles POST /api/sync.
//
//	@Summary		Run one contact sync pass
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	SyncErrorResponse
//	@Failure		502	{object}	SyncErrorResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Sync(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, report)
		return
	}
	switch status := passStatus(err); status {
	case http.StatusConflict:
		writeJSON(w, status, errorBody("sync already running"))
	case http.StatusInternalServerError:
		slog.Error("sync failed", slog.String("error", err.Error()))
		writeJSON(w, status, SyncErrorResponse{Error: "internal error", Report: report})
	default:
		writeJSON(w, status, SyncErrorResponse{Error: err.Error(), Report: report})
	}
}

// Status handles GET /api/status.
//
//	@Summary		Current sync state and last pass
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		slog.Error("status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Runs handles GET /api/runs.
//
//	@Summary		Recent sync passes, newest first
//	@Tags			sync
//	@Produce		json
//	@Param			limit	query		int	false	"Number of passes"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context(), queryInt(r, "limit"))
	if err != nil {
		slog.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// ListContacts handles GET /api/contacts.
//
//	@Summary		List synced contacts with pagination
//	@Tags			contacts
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	ContactListResponse
//	@Security		BearerAuth
//	@Router			/contacts [get]
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.svc.ListContacts(r.Context(), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		slog.Error("list contacts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ContactListResponse{Contacts: items, Total: total})
}

// GetContact handles GET /api/contacts/{uid}.
//
//	@Summary		Get a synced contact and its note
//	@Tags			contacts
//	@Produce		json
//	@Param			uid	path		string	true	"Contact uid"
//	@Success		200	{object}	ContactDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/{uid} [get]
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if decoded, err := url.PathUnescape(uid); err == nil {
		uid = decoded
	}
	if uid == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("uid is required"))
		return
	}

	detail, err := h.svc.GetContact(r.Context(), uid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("contact not found"))
			return
		}
		slog.Error("get contact failed", slog.String("uid", uid), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List the notes in the people folder, synced or not
//	@Tags			contacts
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.ListNotes(r.Context())
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}
