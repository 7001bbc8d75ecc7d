package mcpserver

// ContactNoteContract describes the notes contact sync writes, so LLM
// consumers know which parts they may edit.
const ContactNoteContract = `# Contact Note Format

Every synced contact lives in one Markdown note inside the people folder.

## Location

- ` + "`" + `<people>/<Name>.md` + "`" + ` is the canonical note.
- ` + "`" + `<people>/<Name> (<token>).md` + "`" + ` is used when another contact (or a folder)
  already holds the canonical name. ` + "`" + `<token>` + "`" + ` is the part of the contact uid
  before its first hyphen.
- When the canonical name frees up, the next sync renames the note back.

## Header

` + "```" + `markdown
---
Name: Jane Doe
Organization: Acme
Address: 1 Infinite Loop, Cupertino, CA, 95014, USA
Birthday: 1980-02-01
Email:
  - jane@x.com
  - jd@work.com
Phone: +1 (415) 555-2671
SyncID: ABCD1234-xxxx
Note: Met at the conference
---
` + "```" + `

## Rules

1. **Sync owns eight keys:** Name, Organization, Address, Birthday, Email, Phone,
   SyncID, Note. They are overwritten on every sync; a key whose value was removed
   remotely is removed from the header.
2. **A single value is a scalar, several values are a YAML list.**
3. **SyncID binds the note to one contact.** Never change it. A note whose SyncID
   belongs to another contact is never overwritten.
4. **Everything else is yours.** Extra header keys (tags, aliases, ...) and the
   note body are preserved byte for byte.
5. **Deleting a contact remotely never deletes its note.**
`
