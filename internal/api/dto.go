package api

import (
	"github.com/starford/cardsync/internal/contactservice"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/syncer"
)

// SyncResponse is the report of a pass started through the API.
type SyncResponse = syncer.Report

// StatusResponse is the current sync state (aliased from the domain layer).
type StatusResponse = contactservice.Status

// ContactDetail is a synced contact with its note (aliased from the domain layer).
type ContactDetail = contactservice.ContactDetail

// ContactListResponse wraps paginated contact listings.
type ContactListResponse struct {
	Contacts []ledger.Entry `json:"contacts" validate:"required"`
	Total    int            `json:"total" example:"42" validate:"required"`
}

// NoteListResponse lists the Markdown files in the people folder.
type NoteListResponse struct {
	Notes []models.NoteMetadata `json:"notes" validate:"required"`
}

// RunListResponse wraps recent passes.
type RunListResponse struct {
	Runs []ledger.Run `json:"runs" validate:"required"`
}

// SyncErrorResponse is returned when a pass fails as a whole.
type SyncErrorResponse struct {
	Error  string         `json:"error" validate:"required"`
	Report *syncer.Report `json:"report,omitempty"`
}
