package frontmatter

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/cardsync/internal/models"
)

func jane() models.Contact {
	return models.Contact{UID: "ABCD1234-xxxx", Name: "Jane Doe", Emails: []string{"jane@x.com"}}
}

func TestRender_SingleValues(t *testing.T) {
	out, err := Render(jane())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "---\nName: Jane Doe\nEmail: jane@x.com\nSyncID: ABCD1234-xxxx\n---\n\n"
	if string(out) != want {
		t.Errorf("Render =\n%q\nwant\n%q", out, want)
	}
}

func TestRender_FieldOrder(t *testing.T) {
	c := models.Contact{
		UID:          "u-1",
		Name:         "N",
		Organization: "O",
		Addresses:    []string{"A"},
		Birthday:     "B",
		Emails:       []string{"E"},
		PhoneNumbers: []string{"P"},
		Note:         "Z",
	}
	out, err := Render(c)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var keys []string
	for _, line := range strings.Split(string(out), "\n") {
		if k, _, ok := strings.Cut(line, ":"); ok {
			keys = append(keys, k)
		}
	}
	want := []string{KeyName, KeyOrganization, KeyAddress, KeyBirthday, KeyEmail, KeyPhone, KeySyncID, KeyNote}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}

func TestRender_MultiValueList(t *testing.T) {
	c := jane()
	c.Emails = []string{"jane@x.com", "jd@work.com"}
	out, err := Render(c)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	f, err := Fields(out)
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	got, ok := f[KeyEmail].([]any)
	if !ok || len(got) != 2 || got[0] != "jane@x.com" || got[1] != "jd@work.com" {
		t.Errorf("Email = %#v, want two-item list", f[KeyEmail])
	}
	if _, ok := f[KeyName].(string); !ok {
		t.Errorf("Name should stay a scalar, got %#v", f[KeyName])
	}
}

func TestRender_QuotesAmbiguousScalars(t *testing.T) {
	c := models.Contact{UID: "u-1", Birthday: "1980-02-01", PhoneNumbers: []string{"5551234"}}
	out, err := Render(c)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	f, err := Fields(out)
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if f[KeyBirthday] != "1980-02-01" {
		t.Errorf("Birthday = %#v, want string", f[KeyBirthday])
	}
	if f[KeyPhone] != "5551234" {
		t.Errorf("Phone = %#v, want string", f[KeyPhone])
	}
}

func TestPatch_Idempotent(t *testing.T) {
	c := jane()
	c.PhoneNumbers = []string{"+1 (415) 555-2671", "(415) 555-0000"}
	c.Note = "line one\nline two"
	first, err := Render(c)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, mismatch, err := Patch(first, c)
	if err != nil || mismatch {
		t.Fatalf("Patch: mismatch=%v err=%v", mismatch, err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("patch of rendered note changed bytes:\n%q\n%q", first, second)
	}
}

func TestPatch_ReplacesAndClearsFields(t *testing.T) {
	old := jane()
	old.Organization = "Old Corp"
	old.Emails = []string{"a@x.com", "b@x.com"}
	data, _ := Render(old)

	updated := jane()
	out, mismatch, err := Patch(data, updated)
	if err != nil || mismatch {
		t.Fatalf("Patch: mismatch=%v err=%v", mismatch, err)
	}
	f, _ := Fields(out)
	if _, ok := f[KeyOrganization]; ok {
		t.Errorf("Organization should be cleared: %v", f)
	}
	if f[KeyEmail] != "jane@x.com" {
		t.Errorf("Email = %#v, want scalar", f[KeyEmail])
	}
}

func TestPatch_PreservesForeignKeysAndBody(t *testing.T) {
	data := []byte("---\ntags:\n  - friend\nName: Old\nSyncID: ABCD1234-xxxx\n---\n\n# Jane\n\nMet in 2019.\n")
	out, mismatch, err := Patch(data, jane())
	if err != nil || mismatch {
		t.Fatalf("Patch: mismatch=%v err=%v", mismatch, err)
	}
	s := string(out)
	if !strings.HasSuffix(s, "---\n\n# Jane\n\nMet in 2019.\n") {
		t.Errorf("body not preserved:\n%s", s)
	}
	tags, name := strings.Index(s, "tags:"), strings.Index(s, "Name: Jane Doe\n")
	if tags < 0 || name < 0 || tags > name {
		t.Errorf("foreign key or order not preserved:\n%s", s)
	}
	if !strings.Contains(s, "Email: jane@x.com\n") {
		t.Errorf("new field missing:\n%s", s)
	}
	f, _ := Fields(out)
	if got, ok := f["tags"].([]any); !ok || len(got) != 1 || got[0] != "friend" {
		t.Errorf("tags = %#v", f["tags"])
	}
}

func TestPatch_Mismatch(t *testing.T) {
	data := []byte("---\nName: Jane Doe\nSyncID: OTHER-1\n---\n\nbody\n")
	out, mismatch, err := Patch(data, jane())
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if !mismatch || out != nil {
		t.Errorf("mismatch = %v, out = %q; want mismatch and no content", mismatch, out)
	}
}

func TestPatch_AdoptsUnsetSyncID(t *testing.T) {
	for _, data := range []string{
		"---\nName: Jane Doe\n---\nbody\n",
		"---\nName: Jane Doe\nSyncID:\n---\nbody\n",
		"---\n---\nbody\n",
	} {
		out, mismatch, err := Patch([]byte(data), jane())
		if err != nil || mismatch {
			t.Fatalf("Patch(%q): mismatch=%v err=%v", data, mismatch, err)
		}
		if SyncID(out) != "ABCD1234-xxxx" {
			t.Errorf("SyncID not populated for %q:\n%s", data, out)
		}
		if !strings.HasSuffix(string(out), "---\nbody\n") {
			t.Errorf("body lost for %q:\n%s", data, out)
		}
	}
}

func TestPatch_NoHeader(t *testing.T) {
	data := []byte("# Jane\nnotes\n")
	out, mismatch, err := Patch(data, jane())
	if err != nil || mismatch {
		t.Fatalf("Patch: mismatch=%v err=%v", mismatch, err)
	}
	want := "---\nName: Jane Doe\nEmail: jane@x.com\nSyncID: ABCD1234-xxxx\n---\n# Jane\nnotes\n"
	if string(out) != want {
		t.Errorf("Patch =\n%q\nwant\n%q", out, want)
	}
}

func TestPatch_InvalidHeader(t *testing.T) {
	for name, data := range map[string]string{
		"unparsable": "---\n: invalid: yaml: {{{\n---\nBody\n",
		"sequence":   "---\n- a\n- b\n---\nBody\n",
		"scalar":     "---\njust text\n---\nBody\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Patch([]byte(data), jane()); !errors.Is(err, ErrInvalidHeader) {
				t.Fatalf("err = %v, want ErrInvalidHeader", err)
			}
		})
	}
}

func TestSplit_NoClosingDelimiter(t *testing.T) {
	block, body, ok := split([]byte("---\nName: x\n"))
	if ok || block != nil || string(body) != "---\nName: x\n" {
		t.Errorf("split = %q, %q, %v", block, body, ok)
	}
}

func TestSyncID(t *testing.T) {
	if got := SyncID([]byte("---\nSyncID: abc\n---\n")); got != "abc" {
		t.Errorf("SyncID = %q", got)
	}
	if got := SyncID([]byte("no header")); got != "" {
		t.Errorf("SyncID = %q, want empty", got)
	}
}
