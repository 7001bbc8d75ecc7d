// Package reconcile maps one remote contact onto the vault: it decides
// where the contact's note lives and creates, renames or patches it.
package reconcile

import "github.com/starford/cardsync/internal/storage"

// Decision is the outcome of comparing what occupies the canonical and the
// disambiguated path of a contact. The engine performs I/O based on it.
type Decision int

const (
	// DecisionUpsertCanonical creates the canonical note, or patches it.
	// A SyncID mismatch on patch re-routes the contact to the
	// disambiguated path.
	DecisionUpsertCanonical Decision = iota

	// DecisionRenameThenUpdate means the contact lives at the
	// disambiguated path but the collision that put it there is gone:
	// rename the note to the canonical path, then patch it.
	DecisionRenameThenUpdate

	// DecisionUpdateDisambiguated patches the note at the disambiguated
	// path in place.
	DecisionUpdateDisambiguated

	// DecisionCreateDisambiguated means a folder holds the canonical name.
	// Folders are never renamed; the note goes to the disambiguated path.
	DecisionCreateDisambiguated
)

func (d Decision) String() string {
	switch d {
	case DecisionRenameThenUpdate:
		return "rename-then-update"
	case DecisionUpdateDisambiguated:
		return "update-disambiguated"
	case DecisionCreateDisambiguated:
		return "create-disambiguated"
	default:
		return "upsert-canonical"
	}
}

// Decide is a pure function over the two lookups; the first matching rule
// wins.
func Decide(canonical, disambiguated storage.Kind) Decision {
	switch {
	case disambiguated == storage.KindFile && canonical == storage.KindAbsent:
		return DecisionRenameThenUpdate
	case disambiguated == storage.KindFile:
		return DecisionUpdateDisambiguated
	case canonical == storage.KindFolder:
		return DecisionCreateDisambiguated
	default:
		return DecisionUpsertCanonical
	}
}
