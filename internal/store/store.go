// Package store caches the challenge list last returned by the backend.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campusquest/companion/internal/campus"
)

var ErrNotFound = errors.New("challenge not found")

// Challenges is a SQLite-backed cache of challenges keyed by name. Rows
// hold the challenge as a JSON document; status is mirrored in its own
// column so the optimistic completion flip is a single UPDATE.
type Challenges struct {
	db  *sql.DB
	now func() time.Time
}

func NewChallenges(db *sql.DB) *Challenges {
	return &Challenges{db: db, now: time.Now}
}

// Replace swaps the cached list for list in one transaction.
func (s *Challenges) Replace(ctx context.Context, list []campus.Challenge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM challenges`); err != nil {
		return fmt.Errorf("clearing challenges: %w", err)
	}

	fetchedAt := s.now().UTC().Format(time.RFC3339Nano)
	for _, c := range list {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding challenge %q: %w", c.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO challenges (name, status, data, fetched_at) VALUES (?, ?, ?, ?)`,
			c.Name, string(c.Status), string(data), fetchedAt,
		); err != nil {
			return fmt.Errorf("inserting challenge %q: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

func (s *Challenges) List(ctx context.Context) ([]campus.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, data FROM challenges ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying challenges: %w", err)
	}
	defer rows.Close()

	var out []campus.Challenge
	for rows.Next() {
		var status, data string
		if err := rows.Scan(&status, &data); err != nil {
			return nil, err
		}
		c, err := decode(status, data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Challenges) Get(ctx context.Context, name string) (campus.Challenge, error) {
	var status, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT status, data FROM challenges WHERE name = ?`, name,
	).Scan(&status, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return campus.Challenge{}, ErrNotFound
	}
	if err != nil {
		return campus.Challenge{}, fmt.Errorf("querying challenge %q: %w", name, err)
	}
	return decode(status, data)
}

// SetStatus updates the cached status of one challenge.
func (s *Challenges) SetStatus(ctx context.Context, name string, status campus.ChallengeStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE challenges SET status = ? WHERE name = ?`, string(status), name,
	)
	if err != nil {
		return fmt.Errorf("updating challenge %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted is the optimistic flip applied after the backend confirms
// a completion.
func (s *Challenges) MarkCompleted(ctx context.Context, name string) error {
	return s.SetStatus(ctx, name, campus.StatusCompleted)
}

// Ping reports whether the cache database is reachable.
func (s *Challenges) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func decode(status, data string) (campus.Challenge, error) {
	var c campus.Challenge
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return campus.Challenge{}, fmt.Errorf("decoding challenge: %w", err)
	}
	c.Status = campus.ChallengeStatus(status)
	return c, nil
}
