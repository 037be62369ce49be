// Package history persists chat transcripts and the register of allocated
// remote stores to Postgres. It is an optional collaborator: sessions work
// identically without it. API keys are never written here.
package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmarchi/docqa/session"
)

// DB is the subset of pgxpool.Pool the recorder uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// StoreRecord is one remote store this app allocated and has not yet deleted.
type StoreRecord struct {
	StoreID     string
	DisplayName string
	CreatedAt   time.Time
}

type Recorder struct {
	pool   DB
	logger *log.Logger
}

var _ session.Recorder = (*Recorder)(nil)

func NewRecorder(pool DB, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{pool: pool, logger: logger}
}

func (r *Recorder) RecordStore(ctx context.Context, storeID, name string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO qa_stores (store_id, display_name) VALUES ($1, $2)
		 ON CONFLICT (store_id) DO NOTHING`,
		storeID, name)
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	return nil
}

func (r *Recorder) MarkStoreDeleted(ctx context.Context, storeID string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE qa_stores SET deleted_at = NOW() WHERE store_id = $1", storeID)
	if err != nil {
		return fmt.Errorf("mark store deleted: %w", err)
	}
	return nil
}

func (r *Recorder) RecordSession(ctx context.Context, id uuid.UUID, storeID, storeName string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO qa_sessions (id, store_id, store_name) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET store_id = $2, store_name = $3`,
		id, storeID, storeName)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

func (r *Recorder) RecordMessage(ctx context.Context, sessionID uuid.UUID, msg session.Message) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO qa_messages (id, session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		msg.ID, sessionID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Message already recorded; its citations are too.
		return nil
	}

	for i, citation := range msg.Citations {
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO qa_citations (id, message_id, position, file_name, quote)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (message_id, position) DO NOTHING`,
			uuid.New(), msg.ID, i, citation.FileName, citation.Quote); err != nil {
			return fmt.Errorf("record citation: %w", err)
		}
	}
	return nil
}

func (r *Recorder) CloseSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE qa_sessions SET closed_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// OpenStores lists allocated remote stores that were never marked deleted,
// oldest first. The clear subcommand feeds on this.
func (r *Recorder) OpenStores(ctx context.Context) ([]StoreRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT store_id, display_name, created_at FROM qa_stores
		 WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list open stores: %w", err)
	}
	defer rows.Close()

	var records []StoreRecord
	for rows.Next() {
		var rec StoreRecord
		if err := rows.Scan(&rec.StoreID, &rec.DisplayName, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan store record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store records: %w", err)
	}
	return records, nil
}
