package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureHistorySchema creates the chat-history tables. Transcripts are plain
// text; document content and retrieval state live with the hosted service,
// not here.
func EnsureHistorySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS qa_stores (
			store_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS qa_sessions (
			id UUID PRIMARY KEY,
			store_id TEXT,
			store_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS qa_messages (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES qa_sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS qa_citations (
			id UUID PRIMARY KEY,
			message_id UUID NOT NULL REFERENCES qa_messages(id) ON DELETE CASCADE,
			position INT NOT NULL,
			file_name TEXT NOT NULL,
			quote TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_qa_messages_session ON qa_messages(session_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_qa_citations_message_position ON qa_citations(message_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_qa_stores_open ON qa_stores(store_id) WHERE deleted_at IS NULL",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
