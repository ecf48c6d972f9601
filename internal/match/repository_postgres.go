package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/rating"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id                 TEXT PRIMARY KEY,
	player1_id         TEXT NOT NULL,
	player2_id         TEXT NOT NULL,
	winner_id          TEXT,
	player1_mmr_change INTEGER,
	player2_mmr_change INTEGER,
	status             TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ,
	settlement         JSONB
);
CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches (player1_id);
CREATE INDEX IF NOT EXISTS idx_matches_player2 ON matches (player2_id);
CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches (created_at DESC);
`

const selectColumns = `id, player1_id, player2_id, winner_id, player1_mmr_change, player2_mmr_change,
	status, created_at, completed_at, settlement`

type pgRepo struct {
	db *sql.DB
}

// NewPostgresRepo creates the matches table if it does not exist.
func NewPostgresRepo(ctx context.Context, db *sql.DB) (Repo, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create matches schema: %w", err)
	}
	return &pgRepo{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*Match, error) {
	var (
		m          Match
		winner     sql.NullString
		p1, p2     sql.NullInt64
		completed  sql.NullTime
		settlement []byte
	)
	if err := row.Scan(&m.ID, &m.Player1ID, &m.Player2ID, &winner, &p1, &p2,
		&m.Status, &m.CreatedAt, &completed, &settlement); err != nil {
		return nil, err
	}
	if winner.Valid {
		m.WinnerID = &winner.String
	}
	if p1.Valid {
		v := int(p1.Int64)
		m.Player1MMRChange = &v
	}
	if p2.Valid {
		v := int(p2.Int64)
		m.Player2MMRChange = &v
	}
	if completed.Valid {
		t := completed.Time.UTC()
		m.CompletedAt = &t
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if len(settlement) > 0 {
		var s rating.Settlement
		if err := json.Unmarshal(settlement, &s); err != nil {
			return nil, fmt.Errorf("decode settlement for match %s: %w", m.ID, err)
		}
		m.Settlement = &s
	}
	return &m, nil
}

func (r *pgRepo) Create(ctx context.Context, m *Match) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO matches (id, player1_id, player2_id, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Player1ID, m.Player2ID, m.Status, m.CreatedAt)
	return err
}

func (r *pgRepo) Get(ctx context.Context, id string) (*Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.ErrMatchNotFound
	}
	return m, err
}

func (r *pgRepo) query(ctx context.Context, q string, args ...any) ([]*Match, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *pgRepo) List(ctx context.Context) ([]*Match, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM matches ORDER BY created_at DESC, id`)
}

func (r *pgRepo) ListByPlayer(ctx context.Context, playerID string) ([]*Match, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM matches
		WHERE player1_id = $1 OR player2_id = $1 ORDER BY created_at DESC, id`, playerID)
}

func (r *pgRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n)
	return n, err
}

// whyNot explains a conditional update that touched no rows.
func (r *pgRepo) whyNot(ctx context.Context, id string) error {
	m, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != StatusInProgress {
		return apierr.ErrAlreadyCompleted
	}
	if m.Settlement != nil {
		return apierr.ErrSettlementPending
	}
	return fmt.Errorf("match %s: conditional update lost a race", id)
}

// lib/pq sends []byte as bytea, so JSON goes over the wire as text.
func (r *pgRepo) BeginSettlement(ctx context.Context, id string, s *rating.Settlement) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE matches SET settlement = $2 WHERE id = $1 AND status = 'IN_PROGRESS' AND settlement IS NULL`,
		id, string(data))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return r.whyNot(ctx, id)
	}
	return nil
}

func (r *pgRepo) SaveSettlement(ctx context.Context, id string, s *rating.Settlement) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE matches SET settlement = $2 WHERE id = $1 AND status = 'IN_PROGRESS'`, id, string(data))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return r.whyNot(ctx, id)
	}
	return nil
}

func (r *pgRepo) Transition(ctx context.Context, m *Match) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE matches
		    SET status = $2, winner_id = $3, player1_mmr_change = $4, player2_mmr_change = $5,
		        completed_at = $6, settlement = NULL
		  WHERE id = $1 AND status = 'IN_PROGRESS'`,
		m.ID, m.Status, m.WinnerID, m.Player1MMRChange, m.Player2MMRChange, m.CompletedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		if _, err := r.Get(ctx, m.ID); err != nil {
			return err
		}
		return apierr.ErrAlreadyCompleted
	}
	return nil
}
