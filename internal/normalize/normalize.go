// Package normalize turns parsed vCards into display-ready contacts.
//
// Every optional property is read defensively: a missing or empty property
// yields an absent field, never an error. Only a missing UID fails.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-vcard"
	"golang.org/x/net/html"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

// Options controls optional formatting.
type Options struct {
	// IncludeContactInfoTagging appends " (label)" to phone numbers and
	// emails that carry a meaningful TYPE parameter.
	IncludeContactInfoTagging bool
}

var (
	nonDigitRe = regexp.MustCompile(`\D`)
	nanpRe     = regexp.MustCompile(`^(1)?(\d{3})(\d{3})(\d{4})$`)

	phoneNoiseLabels = map[string]struct{}{"voice": {}, "pref": {}}
	emailNoiseLabels = map[string]struct{}{"internet": {}, "pref": {}}
)

// Normalize extracts a models.Contact from card.
func Normalize(card vcard.Card, opts Options) (models.Contact, error) {
	uid := strings.TrimSpace(card.Value(vcard.FieldUID))
	if uid == "" {
		return models.Contact{}, fmt.Errorf("normalize: %w", apperr.ErrMissingIdentifier)
	}

	return models.Contact{
		UID:          uid,
		Name:         decodeName(card.Value(vcard.FieldFormattedName)),
		Organization: strings.ReplaceAll(card.Value(vcard.FieldOrganization), ";", ""),
		Birthday:     card.Value(vcard.FieldBirthday),
		Addresses:    addresses(card),
		Note:         card.Value(vcard.FieldNote),
		PhoneNumbers: phoneNumbers(card, opts),
		Emails:       emails(card, opts),
	}, nil
}

// HasName reports whether the structured N property carries any non-empty
// component. Cards without N have no name.
func HasName(card vcard.Card) bool {
	n := card.Name()
	if n == nil {
		return false
	}
	for _, part := range []string{n.FamilyName, n.GivenName, n.AdditionalName, n.HonorificPrefix, n.HonorificSuffix} {
		for _, v := range strings.Split(part, ",") {
			if v != "" {
				return true
			}
		}
	}
	return false
}

// FormatPhoneNumber renders NANP numbers as "(AAA) BBB-CCCC", with a "+1 "
// prefix when the country code was present. Anything else is returned as is.
func FormatPhoneNumber(raw string) string {
	m := nanpRe.FindStringSubmatch(nonDigitRe.ReplaceAllString(raw, ""))
	if m == nil {
		return raw
	}
	intl := ""
	if m[1] != "" {
		intl = "+1 "
	}
	return intl + "(" + m[2] + ") " + m[3] + "-" + m[4]
}

// decodeName resolves HTML entities and drops markup the way a DOM's
// textContent would.
func decodeName(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(html.UnescapeString(raw))
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

func addresses(card vcard.Card) []string {
	var out []string
	for _, a := range card.Addresses() {
		var parts []string
		for _, p := range []string{a.PostOfficeBox, a.ExtendedAddress, a.StreetAddress, a.Locality, a.Region, a.PostalCode, a.Country} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		line := strings.Join(parts, ", ")
		line = strings.NewReplacer(`\n`, " ", "\r\n", " ", "\n", " ").Replace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func phoneNumbers(card vcard.Card, opts Options) []string {
	var out []string
	for _, f := range card[vcard.FieldTelephone] {
		if f == nil || f.Value == "" {
			continue
		}
		out = append(out, tagged(FormatPhoneNumber(f.Value), f, phoneNoiseLabels, opts))
	}
	return out
}

func emails(card vcard.Card, opts Options) []string {
	var out []string
	for _, f := range card[vcard.FieldEmail] {
		if f == nil || f.Value == "" {
			continue
		}
		out = append(out, tagged(f.Value, f, emailNoiseLabels, opts))
	}
	return out
}

func tagged(value string, f *vcard.Field, noise map[string]struct{}, opts Options) string {
	if !opts.IncludeContactInfoTagging {
		return value
	}
	if label := firstLabel(f, noise); label != "" {
		return value + " (" + label + ")"
	}
	return value
}

// firstLabel returns the first TYPE value not listed in noise. TYPE may be
// repeated or comma-separated; comparison is case-insensitive.
func firstLabel(f *vcard.Field, noise map[string]struct{}) string {
	for key, values := range f.Params {
		if !strings.EqualFold(key, vcard.ParamType) {
			continue
		}
		for _, raw := range values {
			for _, t := range strings.Split(raw, ",") {
				t = strings.ToLower(strings.TrimSpace(t))
				if t == "" {
					continue
				}
				if _, skip := noise[t]; !skip {
					return t
				}
			}
		}
	}
	return ""
}
