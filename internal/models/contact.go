// Package models defines the domain types for cardsync.
package models

import "time"

// Contact is one normalized remote contact. It lives for a single sync pass.
// Empty strings and nil slices mean the field is absent.
type Contact struct {
	UID          string   `json:"uid"`
	Name         string   `json:"name,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Birthday     string   `json:"birthday,omitempty"`
	Addresses    []string `json:"addresses,omitempty"`
	Note         string   `json:"note,omitempty"`
	PhoneNumbers []string `json:"phone_numbers,omitempty"`
	Emails       []string `json:"emails,omitempty"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
