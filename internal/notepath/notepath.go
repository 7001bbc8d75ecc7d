// Package notepath derives vault paths for contact notes.
package notepath

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/models"
)

const (
	noteExt = ".md"
	// tokenLen is the length of a derived token when a uid has no usable
	// hyphen-delimited prefix.
	tokenLen = 8
)

// Paths holds the two candidate locations of a contact note.
type Paths struct {
	Canonical     string
	Disambiguated string
}

var stemReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-")

// Normalize cleans a vault-relative path: forward slashes only, no empty,
// "." or ".." segments, no leading or trailing slash, NFC encoded.
// The vault root normalizes to "".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(p)
	p = norm.NFC.String(p)
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Resolve returns the canonical and disambiguated note paths for a contact
// name and uid inside peoplePath.
func Resolve(peoplePath, name, uid string) Paths {
	stem := sanitizeStem(name)
	if stem == "" {
		stem = sanitizeStem(uid)
	}
	dir := Normalize(peoplePath)
	return Paths{
		Canonical:     Normalize(path.Join(dir, stem+noteExt)),
		Disambiguated: Normalize(path.Join(dir, stem+" ("+Token(uid)+")"+noteExt)),
	}
}

// ForContact resolves paths for c. Nameless contacts fall back to their
// organization, first email, first phone number and finally their uid.
func ForContact(peoplePath string, c models.Contact) Paths {
	return Resolve(peoplePath, DisplayName(c), c.UID)
}

// DisplayName is the file stem source for c.
func DisplayName(c models.Contact) string {
	for _, s := range []string{c.Name, c.Organization, first(c.Emails), first(c.PhoneNumbers)} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return c.UID
}

// Token is the short uid fragment used in disambiguated names: the first
// hyphen-delimited segment. Uids without a usable segment get a digest prefix.
func Token(uid string) string {
	uid = strings.TrimSpace(uid)
	seg, _, found := strings.Cut(uid, "-")
	seg = sanitizeStem(seg)
	if seg == "" || (!found && len(seg) > tokenLen) {
		return checksum.Short(uid, tokenLen)
	}
	return seg
}

func sanitizeStem(s string) string {
	s = strings.TrimSpace(stemReplacer.Replace(s))
	if s == "." || s == ".." {
		return ""
	}
	return s
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
