package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS quote_checks (
	id                         UUID PRIMARY KEY,
	status                     TEXT NOT NULL DEFAULT 'pending',
	profile                    TEXT NOT NULL DEFAULT '',
	file_ref                   TEXT NOT NULL DEFAULT '',
	text                       TEXT NOT NULL DEFAULT '',
	anonymised_text            TEXT NOT NULL DEFAULT '',
	metadata                   JSONB NOT NULL DEFAULT '{}',
	naive_attributes           JSONB,
	private_data_qa_attributes JSONB,
	private_data_qa_result     TEXT NOT NULL DEFAULT '',
	qa_attributes              JSONB,
	qa_result                  TEXT NOT NULL DEFAULT '',
	read_attributes            JSONB,
	validation_errors          JSONB,
	expected_validation_errors JSONB,
	tokens_count               INTEGER NOT NULL DEFAULT 0,
	processing_time            DOUBLE PRECISION NOT NULL DEFAULT 0,
	application_version        TEXT NOT NULL DEFAULT '',
	started_at                 TIMESTAMPTZ,
	finished_at                TIMESTAMPTZ,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quote_check_feedbacks (
	id                          UUID PRIMARY KEY,
	quote_check_id              UUID NOT NULL REFERENCES quote_checks(id),
	validation_error_details_id TEXT NOT NULL,
	is_helpful                  BOOLEAN,
	comment                     TEXT NOT NULL DEFAULT '',
	rating                      INTEGER,
	email                       TEXT NOT NULL DEFAULT '',
	provided_value              TEXT NOT NULL DEFAULT '',
	created_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quote_checks_status ON quote_checks(status);
CREATE INDEX IF NOT EXISTS idx_quote_checks_profile ON quote_checks(profile);
CREATE INDEX IF NOT EXISTS idx_feedbacks_quote_check_id ON quote_check_feedbacks(quote_check_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateQuoteCheck(ctx context.Context, qc model.QuoteCheck) (*model.QuoteCheck, error) {
	qc.ID = uuid.New().String()
	qc.Status = model.StatusPending
	now := time.Now().UTC()
	qc.CreatedAt = now
	qc.UpdatedAt = now

	metadataJSON, err := json.Marshal(qc.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quote_checks (id, status, profile, file_ref, text, metadata, application_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		qc.ID, string(qc.Status), qc.Profile, qc.FileRef, qc.Text, string(metadataJSON), qc.ApplicationVersion, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert quote check")
	}
	return &qc, nil
}

func (s *PostgresStore) GetQuoteCheck(ctx context.Context, id string) (*model.QuoteCheck, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quoteCheckColumns+` FROM quote_checks WHERE id = $1`, id)
	qc, err := scanQuoteCheck(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: quote check %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get quote check %s", id)
	}
	return qc, nil
}

func (s *PostgresStore) ListQuoteChecks(ctx context.Context, filter QuoteCheckFilter) ([]model.QuoteCheck, error) {
	query := `SELECT ` + quoteCheckColumns + ` FROM quote_checks WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Profile != "" {
		query += ` AND profile = ` + arg(filter.Profile)
	}
	if filter.WithExpected {
		query += ` AND expected_validation_errors IS NOT NULL`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quote checks")
	}
	defer rows.Close()

	var out []model.QuoteCheck
	for rows.Next() {
		qc, err := scanQuoteCheck(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan quote check")
		}
		out = append(out, *qc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list quote checks")
}

func (s *PostgresStore) BeginProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_checks SET status = $1, started_at = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(model.StatusProcessing), now, now, id, string(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin processing %s", id)
	}
	return s.guardTransition(ctx, tag, id)
}

func (s *PostgresStore) ResetForRecheck(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_checks SET status = $1, updated_at = $2 WHERE id = $3 AND status != $4`,
		string(model.StatusPending), time.Now().UTC(), id, string(model.StatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset for recheck %s", id)
	}
	return s.guardTransition(ctx, tag, id)
}

func (s *PostgresStore) guardTransition(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM quote_checks WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: quote check %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: quote check %s", id)
	}
	return eris.Wrapf(ErrConflict, "postgres: quote check %s", id)
}

func (s *PostgresStore) UpdateResult(ctx context.Context, qc *model.QuoteCheck) error {
	cols, err := marshalResultColumns(qc)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_checks SET
			status = $1, anonymised_text = $2,
			naive_attributes = $3, private_data_qa_attributes = $4, private_data_qa_result = $5,
			qa_attributes = $6, qa_result = $7, read_attributes = $8, validation_errors = $9,
			tokens_count = $10, processing_time = $11, application_version = $12, finished_at = $13, updated_at = $14
		 WHERE id = $15`,
		string(qc.Status), qc.AnonymisedText,
		cols.naive, cols.private, qc.PrivateDataQAResult,
		cols.qa, qc.QAResult, cols.read, cols.errors,
		qc.TokensCount, qc.ProcessingTime, qc.ApplicationVersion, now, now,
		qc.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update result %s", qc.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: quote check %s", qc.ID)
	}
	return nil
}

func (s *PostgresStore) SetExpectedValidationErrors(ctx context.Context, id string, errs []model.ValidationErrorDetail) error {
	data, err := json.Marshal(errs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal expected errors")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_checks SET expected_validation_errors = $1, updated_at = $2 WHERE id = $3`,
		string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set expected errors %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: quote check %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateFeedback(ctx context.Context, fb model.Feedback) (*model.Feedback, error) {
	fb.ID = uuid.New().String()
	fb.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO quote_check_feedbacks
			(id, quote_check_id, validation_error_details_id, is_helpful, comment, rating, email, provided_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fb.ID, fb.QuoteCheckID, fb.ValidationErrorDetailsID, fb.IsHelpful, fb.Comment, fb.Rating, fb.Email, fb.ProvidedValue, fb.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert feedback")
	}
	return &fb, nil
}

func (s *PostgresStore) ListFeedbacks(ctx context.Context, quoteCheckID string) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quote_check_id, validation_error_details_id, is_helpful, comment, rating, email, provided_value, created_at
		 FROM quote_check_feedbacks WHERE quote_check_id = $1 ORDER BY created_at ASC`,
		quoteCheckID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedbacks")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		if err := rows.Scan(
			&fb.ID, &fb.QuoteCheckID, &fb.ValidationErrorDetailsID,
			&fb.IsHelpful, &fb.Comment, &fb.Rating, &fb.Email, &fb.ProvidedValue, &fb.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feedbacks")
}
