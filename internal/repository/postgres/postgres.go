package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS challenges (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL,
	category    TEXT NOT NULL,
	value       INTEGER NOT NULL,
	type        TEXT NOT NULL,
	minimum     INTEGER NOT NULL DEFAULT 0,
	decay       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS challenge_flags (
	challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	content      TEXT NOT NULL,
	type         TEXT NOT NULL,
	PRIMARY KEY (challenge_id, position)
);

CREATE TABLE IF NOT EXISTS challenge_tags (
	challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	value        TEXT NOT NULL,
	PRIMARY KEY (challenge_id, position)
);

CREATE TABLE IF NOT EXISTS challenge_files (
	challenge_id  UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	storage_id    TEXT NOT NULL,
	original_name TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	size          BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (challenge_id, position)
);
`

const uniqueViolation = "23505"

type challengeRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Category    string    `db:"category"`
	Value       int       `db:"value"`
	Type        string    `db:"type"`
	Minimum     int       `db:"minimum"`
	Decay       int       `db:"decay"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type flagRow struct {
	ChallengeID string `db:"challenge_id"`
	Position    int    `db:"position"`
	Content     string `db:"content"`
	Type        string `db:"type"`
}

type tagRow struct {
	ChallengeID string `db:"challenge_id"`
	Position    int    `db:"position"`
	Value       string `db:"value"`
}

type fileRow struct {
	ChallengeID  string    `db:"challenge_id"`
	Position     int       `db:"position"`
	StorageID    string    `db:"storage_id"`
	OriginalName string    `db:"original_name"`
	ContentType  string    `db:"content_type"`
	Size         int64     `db:"size"`
	CreatedAt    time.Time `db:"created_at"`
}

type ChallengesRepository struct {
	db *sqlx.DB
}

// Connect opens dsn and creates the schema when missing.
func Connect(ctx context.Context, dsn string) (*ChallengesRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return NewChallengesRepository(db), nil
}

func NewChallengesRepository(db *sqlx.DB) *ChallengesRepository {
	return &ChallengesRepository{db: db}
}

func (r *ChallengesRepository) Close() error {
	return r.db.Close()
}

func (r *ChallengesRepository) GetByName(ctx context.Context, name string) (*domain.Challenge, error) {
	var row challengeRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM challenges WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query challenge: %w", err)
	}

	challenges, err := r.withChildren(ctx, []challengeRow{row})
	if err != nil {
		return nil, err
	}
	return &challenges[0], nil
}

func (r *ChallengesRepository) Create(ctx context.Context, c *domain.Challenge) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO challenges (id, name, description, category, value, type, minimum, decay, created_at, updated_at)
			VALUES (:id, :name, :description, :category, :value, :type, :minimum, :decay, :created_at, :updated_at)
		`, toRow(c))
		if err != nil {
			return fmt.Errorf("failed to insert challenge: %w", mapError(err))
		}
		return insertChildren(ctx, tx, c)
	})
}

func (r *ChallengesRepository) Update(ctx context.Context, c *domain.Challenge) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE challenges
			SET name = :name, description = :description, category = :category, value = :value,
			    type = :type, minimum = :minimum, decay = :decay, updated_at = :updated_at
			WHERE id = :id
		`, toRow(c))
		if err != nil {
			return fmt.Errorf("failed to update challenge: %w", mapError(err))
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return repository.ErrNotFound
		}

		for _, table := range []string{"challenge_flags", "challenge_tags", "challenge_files"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE challenge_id = $1`, c.ID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		return insertChildren(ctx, tx, c)
	})
}

func (r *ChallengesRepository) List(ctx context.Context) ([]domain.Challenge, error) {
	var rows []challengeRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM challenges ORDER BY created_at, name`); err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Challenge{}, nil
	}
	return r.withChildren(ctx, rows)
}

func (r *ChallengesRepository) withChildren(ctx context.Context, rows []challengeRow) ([]domain.Challenge, error) {
	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	out := make([]domain.Challenge, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		index[row.ID] = i
		out[i] = fromRow(row)
	}

	var flags []flagRow
	if err := r.db.SelectContext(ctx, &flags,
		`SELECT * FROM challenge_flags WHERE challenge_id = ANY($1) ORDER BY position`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to query flags: %w", err)
	}
	for _, f := range flags {
		c := &out[index[f.ChallengeID]]
		c.Flags = append(c.Flags, domain.Flag{Content: f.Content, Type: f.Type})
	}

	var tags []tagRow
	if err := r.db.SelectContext(ctx, &tags,
		`SELECT * FROM challenge_tags WHERE challenge_id = ANY($1) ORDER BY position`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	for _, t := range tags {
		c := &out[index[t.ChallengeID]]
		c.Tags = append(c.Tags, t.Value)
	}

	var files []fileRow
	if err := r.db.SelectContext(ctx, &files,
		`SELECT * FROM challenge_files WHERE challenge_id = ANY($1) ORDER BY position`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	for _, f := range files {
		c := &out[index[f.ChallengeID]]
		c.Files = append(c.Files, domain.ChallengeFile{
			StorageID:    f.StorageID,
			OriginalName: f.OriginalName,
			ContentType:  f.ContentType,
			Size:         f.Size,
			CreatedAt:    f.CreatedAt,
		})
	}

	return out, nil
}

func (r *ChallengesRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertChildren(ctx context.Context, tx *sqlx.Tx, c *domain.Challenge) error {
	for i, f := range c.Flags {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO challenge_flags (challenge_id, position, content, type) VALUES (:challenge_id, :position, :content, :type)`,
			flagRow{ChallengeID: c.ID, Position: i, Content: f.Content, Type: f.Type})
		if err != nil {
			return fmt.Errorf("failed to insert flag: %w", err)
		}
	}

	for i, t := range c.Tags {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO challenge_tags (challenge_id, position, value) VALUES (:challenge_id, :position, :value)`,
			tagRow{ChallengeID: c.ID, Position: i, Value: t})
		if err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}

	for i, f := range c.Files {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO challenge_files (challenge_id, position, storage_id, original_name, content_type, size, created_at)
			VALUES (:challenge_id, :position, :storage_id, :original_name, :content_type, :size, :created_at)
		`, fileRow{
			ChallengeID:  c.ID,
			Position:     i,
			StorageID:    f.StorageID,
			OriginalName: f.OriginalName,
			ContentType:  f.ContentType,
			Size:         f.Size,
			CreatedAt:    f.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
	}

	return nil
}

func toRow(c *domain.Challenge) challengeRow {
	return challengeRow{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Category:    c.Category,
		Value:       c.Value,
		Type:        string(c.Type),
		Minimum:     c.Minimum,
		Decay:       c.Decay,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func fromRow(row challengeRow) domain.Challenge {
	return domain.Challenge{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Category:    row.Category,
		Value:       row.Value,
		Type:        domain.ChallengeType(row.Type),
		Minimum:     row.Minimum,
		Decay:       row.Decay,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}
