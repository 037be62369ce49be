package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmarchi/docqa/remote"
)

// Role distinguishes who authored a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Citation is a grounding fragment resolved against the session's uploaded
// files. Order follows the remote response.
type Citation struct {
	FileID   string
	FileName string
	Quote    string
	Marker   string
}

// Clickable reports whether the citation carries source text worth showing.
// Non-clickable citations keep their position in the list.
func (c Citation) Clickable() bool { return c.Quote != "" }

// Message is one transcript entry. Messages are immutable once appended;
// the transcript itself is append-only for the life of the chat.
type Message struct {
	ID        uuid.UUID
	Role      Role
	Content   string
	Citations []Citation
	CreatedAt time.Time
}

// ClickableCitations filters to citations with displayable source text.
func (m Message) ClickableCitations() []Citation {
	clickable := make([]Citation, 0, len(m.Citations))
	for _, c := range m.Citations {
		if c.Clickable() {
			clickable = append(clickable, c)
		}
	}
	return clickable
}

// resolveCitations maps fragments onto citations, resolving file ids to the
// display names of the session's uploads. Unknown ids keep the raw id so the
// fragment still renders.
func resolveCitations(fragments []remote.Fragment, fileNames map[string]string) []Citation {
	if len(fragments) == 0 {
		return nil
	}
	citations := make([]Citation, len(fragments))
	for i, f := range fragments {
		name := fileNames[f.FileID]
		if name == "" {
			name = f.FileID
		}
		citations[i] = Citation{
			FileID:   f.FileID,
			FileName: name,
			Quote:    f.Quote,
			Marker:   f.Marker,
		}
	}
	return citations
}
