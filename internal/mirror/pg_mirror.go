package mirror

import (
	"context"
	"database/sql"
)

// PGStore mirrors membership into a single room_members table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the mirror table if missing. Run once at boot.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS room_members (
	    room_id       TEXT NOT NULL,
	    username      TEXT NOT NULL,
	    captain       BOOLEAN NOT NULL DEFAULT FALSE,
	    connection_id TEXT NOT NULL DEFAULT '',
	    score         INTEGER NOT NULL DEFAULT 0,
	    answer_order  INTEGER NOT NULL DEFAULT 0,
	    active        BOOLEAN NOT NULL DEFAULT TRUE,
	    PRIMARY KEY (room_id, username)
	)`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *PGStore) Put(ctx context.Context, roomID, username string, rec Record) error {
	const upsert = `
	INSERT INTO room_members (room_id, username, captain, connection_id,
	                          score, answer_order, active)
	     VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (room_id, username) DO UPDATE
	       SET captain       = EXCLUDED.captain,
	           connection_id = EXCLUDED.connection_id,
	           score         = EXCLUDED.score,
	           answer_order  = EXCLUDED.answer_order,
	           active        = EXCLUDED.active`
	_, err := s.db.ExecContext(ctx, upsert,
		roomID, username, rec.Captain, rec.ConnectionID,
		rec.Score, rec.AnswerOrder, rec.Active)
	return err
}

func (s *PGStore) Delete(ctx context.Context, roomID, username string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND username = $2`,
		roomID, username)
	return err
}

func (s *PGStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE room_members`)
	return err
}
