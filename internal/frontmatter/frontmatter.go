// Package frontmatter renders and patches the YAML header of contact notes.
//
// Patching works on a yaml.Node tree so that keys the user added, their
// order, comments and the note body survive every sync.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/cardsync/internal/models"
)

// Header keys, in the order a new note lists them.
const (
	KeyName         = "Name"
	KeyOrganization = "Organization"
	KeyAddress      = "Address"
	KeyBirthday     = "Birthday"
	KeyEmail        = "Email"
	KeyPhone        = "Phone"
	KeySyncID       = "SyncID"
	KeyNote         = "Note"
)

const delim = "---"

// ErrInvalidHeader reports a header that is not a YAML mapping.
var ErrInvalidHeader = errors.New("frontmatter: invalid header")

type field struct {
	key   string
	value *yaml.Node
}

// fields lists the header entries for c in canonical order. A nil value
// means the field is absent on the contact.
func fields(c models.Contact) []field {
	return []field{
		{KeyName, scalar(c.Name)},
		{KeyOrganization, scalar(c.Organization)},
		{KeyAddress, multi(c.Addresses)},
		{KeyBirthday, scalar(c.Birthday)},
		{KeyEmail, multi(c.Emails)},
		{KeyPhone, multi(c.PhoneNumbers)},
		{KeySyncID, scalar(c.UID)},
		{KeyNote, scalar(c.Note)},
	}
}

// Render returns a brand-new note for c: header only, empty body.
func Render(c models.Contact) ([]byte, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range fields(c) {
		if f.value != nil {
			m.Content = append(m.Content, key(f.key), f.value)
		}
	}
	return assemble(m, []byte("\n"))
}

// Patch writes c into the header of an existing note. Every contact field is
// replaced; fields absent on c are removed. SyncID is added when unset.
//
// If the note already belongs to another uid, Patch returns mismatch=true
// and no content. The returned content may equal data when nothing changed.
func Patch(data []byte, c models.Contact) (out []byte, mismatch bool, err error) {
	m, body, err := header(data)
	if err != nil {
		return nil, false, err
	}
	if id := SyncIDOf(m); id != "" && id != c.UID {
		return nil, true, nil
	}
	for _, f := range fields(c) {
		if f.value == nil {
			remove(m, f.key)
			continue
		}
		set(m, f.key, f.value)
	}
	out, err = assemble(m, body)
	if err != nil {
		return nil, false, err
	}
	return out, false, nil
}

// SyncIDOf returns the SyncID stored in a header mapping, or "" when unset.
func SyncIDOf(m *yaml.Node) string {
	v := lookup(m, KeySyncID)
	if v == nil || v.Kind != yaml.ScalarNode || v.Tag == "!!null" {
		return ""
	}
	return v.Value
}

// SyncID returns the SyncID of a note, or "" when the note has none or its
// header cannot be parsed.
func SyncID(data []byte) string {
	m, _, err := header(data)
	if err != nil {
		return ""
	}
	return SyncIDOf(m)
}

// Fields decodes the header of a note into a map. Notes without a header
// yield an empty map.
func Fields(data []byte) (map[string]any, error) {
	m, _, err := header(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := m.Decode(&out); err != nil {
		return nil, fmt.Errorf("frontmatter: decode header: %w", err)
	}
	return out, nil
}

// header returns the header mapping (empty when the note has none) and the
// body bytes that follow it.
func header(data []byte) (*yaml.Node, []byte, error) {
	block, body, ok := split(data)
	if !ok {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, data, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	switch {
	case doc.Kind == 0, doc.Kind == yaml.DocumentNode && len(doc.Content) == 0:
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, body, nil
	case doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode:
		return doc.Content[0], body, nil
	case doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Tag == "!!null":
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, body, nil
	default:
		return nil, nil, fmt.Errorf("%w: not a mapping", ErrInvalidHeader)
	}
}

// split separates the YAML block between the leading --- delimiters from
// the body. The body starts after the closing delimiter line.
func split(data []byte) (block, body []byte, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, data, false
	}
	rest := trimmed[len(delim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, data, false
	}
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, data, false
	}
	block = rest[:idx]
	after := rest[idx+1+len(delim):]
	if i := bytes.IndexByte(after, '\n'); i >= 0 {
		after = after[i+1:]
	} else {
		after = nil
	}
	return block, after, true
}

func assemble(m *yaml.Node, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("frontmatter: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: encode header: %w", err)
	}
	buf.WriteString(delim + "\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

func key(k string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
}

func scalar(s string) *yaml.Node {
	if s == "" {
		return nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// multi renders one value as a scalar and several as a block sequence.
func multi(values []string) *yaml.Node {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return scalar(values[0])
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	return seq
}

func lookup(m *yaml.Node, k string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == k {
			return m.Content[i+1]
		}
	}
	return nil
}

func set(m *yaml.Node, k string, v *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == k {
			old := m.Content[i+1]
			v.HeadComment, v.LineComment, v.FootComment = old.HeadComment, old.LineComment, old.FootComment
			m.Content[i+1] = v
			return
		}
	}
	m.Content = append(m.Content, key(k), v)
}

func remove(m *yaml.Node, k string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == k {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}
