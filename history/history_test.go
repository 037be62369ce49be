package history

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/dmarchi/docqa/session"
)

// stubDB records executed statements. Tags are consumed per Exec call;
// once exhausted every insert reports one affected row.
type stubDB struct {
	execs []string
	tags  []pgconn.CommandTag
}

var _ DB = (*stubDB)(nil)

func (s *stubDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, sql)
	if len(s.tags) > 0 {
		tag := s.tags[0]
		s.tags = s.tags[1:]
		return tag, nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (s *stubDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", sql)
}

func TestRecordMessageWritesCitationsExactlyOnce(t *testing.T) {
	db := &stubDB{}
	recorder := NewRecorder(db, log.New(io.Discard, "", 0))

	msg := session.Message{
		ID:      uuid.New(),
		Role:    session.RoleModel,
		Content: "answer",
		Citations: []session.Citation{
			{FileName: "a.pdf", Quote: "first"},
			{FileName: "b.txt", Quote: "second"},
		},
		CreatedAt: time.Now(),
	}
	sessionID := uuid.New()

	require.NoError(t, recorder.RecordMessage(context.Background(), sessionID, msg))
	require.Len(t, db.execs, 3, "one message insert plus one insert per citation")
	for _, sql := range db.execs[1:] {
		require.Contains(t, sql, "ON CONFLICT (message_id, position)")
	}

	// Re-recording the same message is a no-op for its citations too.
	db.tags = []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")}
	require.NoError(t, recorder.RecordMessage(context.Background(), sessionID, msg))
	require.Len(t, db.execs, 4, "only the conflicting message insert runs again")
	require.Contains(t, db.execs[3], "INSERT INTO qa_messages")
}

func TestRecordStoreIsIdempotent(t *testing.T) {
	db := &stubDB{}
	recorder := NewRecorder(db, log.New(io.Discard, "", 0))

	require.NoError(t, recorder.RecordStore(context.Background(), "vs-1", "docs"))
	require.Len(t, db.execs, 1)
	require.True(t, strings.Contains(db.execs[0], "ON CONFLICT (store_id) DO NOTHING"))
}
