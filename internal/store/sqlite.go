package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/betagouv/quotecheck/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS quote_checks (
	id                         TEXT PRIMARY KEY,
	status                     TEXT NOT NULL DEFAULT 'pending',
	profile                    TEXT NOT NULL DEFAULT '',
	file_ref                   TEXT NOT NULL DEFAULT '',
	text                       TEXT NOT NULL DEFAULT '',
	anonymised_text            TEXT NOT NULL DEFAULT '',
	metadata                   TEXT NOT NULL DEFAULT '{}',
	naive_attributes           TEXT,
	private_data_qa_attributes TEXT,
	private_data_qa_result     TEXT NOT NULL DEFAULT '',
	qa_attributes              TEXT,
	qa_result                  TEXT NOT NULL DEFAULT '',
	read_attributes            TEXT,
	validation_errors          TEXT,
	expected_validation_errors TEXT,
	tokens_count               INTEGER NOT NULL DEFAULT 0,
	processing_time            REAL NOT NULL DEFAULT 0,
	application_version        TEXT NOT NULL DEFAULT '',
	started_at                 DATETIME,
	finished_at                DATETIME,
	created_at                 DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                 DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS quote_check_feedbacks (
	id                          TEXT PRIMARY KEY,
	quote_check_id              TEXT NOT NULL REFERENCES quote_checks(id),
	validation_error_details_id TEXT NOT NULL,
	is_helpful                  INTEGER,
	comment                     TEXT NOT NULL DEFAULT '',
	rating                      INTEGER,
	email                       TEXT NOT NULL DEFAULT '',
	provided_value              TEXT NOT NULL DEFAULT '',
	created_at                  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_quote_checks_status ON quote_checks(status);
CREATE INDEX IF NOT EXISTS idx_quote_checks_profile ON quote_checks(profile);
CREATE INDEX IF NOT EXISTS idx_feedbacks_quote_check_id ON quote_check_feedbacks(quote_check_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateQuoteCheck(ctx context.Context, qc model.QuoteCheck) (*model.QuoteCheck, error) {
	qc.ID = uuid.New().String()
	qc.Status = model.StatusPending
	now := time.Now().UTC()
	qc.CreatedAt = now
	qc.UpdatedAt = now

	metadataJSON, err := json.Marshal(qc.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quote_checks (id, status, profile, file_ref, text, metadata, application_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		qc.ID, string(qc.Status), qc.Profile, qc.FileRef, qc.Text, string(metadataJSON), qc.ApplicationVersion, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert quote check")
	}
	return &qc, nil
}

const quoteCheckColumns = `id, status, profile, file_ref, text, anonymised_text, metadata,
	naive_attributes, private_data_qa_attributes, private_data_qa_result,
	qa_attributes, qa_result, read_attributes, validation_errors, expected_validation_errors,
	tokens_count, processing_time, application_version, started_at, finished_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuoteCheck(row rowScanner) (*model.QuoteCheck, error) {
	var qc model.QuoteCheck
	var status string
	var metadataJSON string
	var naiveJSON, privateJSON, qaJSON, readJSON, errorsJSON, expectedJSON sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&qc.ID, &status, &qc.Profile, &qc.FileRef, &qc.Text, &qc.AnonymisedText, &metadataJSON,
		&naiveJSON, &privateJSON, &qc.PrivateDataQAResult,
		&qaJSON, &qc.QAResult, &readJSON, &errorsJSON, &expectedJSON,
		&qc.TokensCount, &qc.ProcessingTime, &qc.ApplicationVersion,
		&startedAt, &finishedAt, &qc.CreatedAt, &qc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	qc.Status = model.Status(status)
	if startedAt.Valid {
		qc.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		qc.FinishedAt = &finishedAt.Time
	}

	if err := json.Unmarshal([]byte(metadataJSON), &qc.Metadata); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal metadata")
	}
	for _, col := range []struct {
		src  sql.NullString
		dest any
	}{
		{naiveJSON, &qc.NaiveAttributes},
		{privateJSON, &qc.PrivateDataQAAttributes},
		{qaJSON, &qc.QAAttributes},
		{readJSON, &qc.ReadAttributes},
		{errorsJSON, &qc.ValidationErrors},
		{expectedJSON, &qc.ExpectedValidationErrors},
	} {
		if !col.src.Valid || col.src.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.src.String), col.dest); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal quote check column")
		}
	}
	return &qc, nil
}

func (s *SQLiteStore) GetQuoteCheck(ctx context.Context, id string) (*model.QuoteCheck, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quoteCheckColumns+` FROM quote_checks WHERE id = ?`, id)
	qc, err := scanQuoteCheck(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: quote check %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get quote check %s", id)
	}
	return qc, nil
}

func (s *SQLiteStore) ListQuoteChecks(ctx context.Context, filter QuoteCheckFilter) ([]model.QuoteCheck, error) {
	query := `SELECT ` + quoteCheckColumns + ` FROM quote_checks WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Profile != "" {
		query += ` AND profile = ?`
		args = append(args, filter.Profile)
	}
	if filter.WithExpected {
		query += ` AND expected_validation_errors IS NOT NULL`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quote checks")
	}
	defer rows.Close()

	var out []model.QuoteCheck
	for rows.Next() {
		qc, err := scanQuoteCheck(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quote check")
		}
		out = append(out, *qc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list quote checks")
}

func (s *SQLiteStore) BeginProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE quote_checks SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.StatusProcessing), now, now, id, string(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin processing %s", id)
	}
	return s.guardTransition(ctx, res, id)
}

func (s *SQLiteStore) ResetForRecheck(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quote_checks SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		string(model.StatusPending), time.Now().UTC(), id, string(model.StatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset for recheck %s", id)
	}
	return s.guardTransition(ctx, res, id)
}

// guardTransition distinguishes a missing record from a conditional
// update lost to the current status.
func (s *SQLiteStore) guardTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM quote_checks WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "sqlite: quote check %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: quote check %s", id)
	}
	return eris.Wrapf(ErrConflict, "sqlite: quote check %s", id)
}

func (s *SQLiteStore) UpdateResult(ctx context.Context, qc *model.QuoteCheck) error {
	cols, err := marshalResultColumns(qc)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE quote_checks SET
			status = ?, anonymised_text = ?,
			naive_attributes = ?, private_data_qa_attributes = ?, private_data_qa_result = ?,
			qa_attributes = ?, qa_result = ?, read_attributes = ?, validation_errors = ?,
			tokens_count = ?, processing_time = ?, application_version = ?, finished_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(qc.Status), qc.AnonymisedText,
		cols.naive, cols.private, qc.PrivateDataQAResult,
		cols.qa, qc.QAResult, cols.read, cols.errors,
		qc.TokensCount, qc.ProcessingTime, qc.ApplicationVersion, now, now,
		qc.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update result %s", qc.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: quote check %s", qc.ID)
	}
	return nil
}

func (s *SQLiteStore) SetExpectedValidationErrors(ctx context.Context, id string, errs []model.ValidationErrorDetail) error {
	data, err := json.Marshal(errs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal expected errors")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quote_checks SET expected_validation_errors = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set expected errors %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: quote check %s", id)
	}
	return nil
}

func (s *SQLiteStore) CreateFeedback(ctx context.Context, fb model.Feedback) (*model.Feedback, error) {
	fb.ID = uuid.New().String()
	fb.CreatedAt = time.Now().UTC()

	var isHelpful any
	if fb.IsHelpful != nil {
		isHelpful = *fb.IsHelpful
	}
	var rating any
	if fb.Rating != nil {
		rating = *fb.Rating
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quote_check_feedbacks
			(id, quote_check_id, validation_error_details_id, is_helpful, comment, rating, email, provided_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.QuoteCheckID, fb.ValidationErrorDetailsID, isHelpful, fb.Comment, rating, fb.Email, fb.ProvidedValue, fb.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert feedback")
	}
	return &fb, nil
}

func (s *SQLiteStore) ListFeedbacks(ctx context.Context, quoteCheckID string) ([]model.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quote_check_id, validation_error_details_id, is_helpful, comment, rating, email, provided_value, created_at
		 FROM quote_check_feedbacks WHERE quote_check_id = ? ORDER BY created_at ASC`,
		quoteCheckID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedbacks")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		var isHelpful sql.NullBool
		var rating sql.NullInt64
		if err := rows.Scan(
			&fb.ID, &fb.QuoteCheckID, &fb.ValidationErrorDetailsID,
			&isHelpful, &fb.Comment, &rating, &fb.Email, &fb.ProvidedValue, &fb.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		if isHelpful.Valid {
			v := isHelpful.Bool
			fb.IsHelpful = &v
		}
		if rating.Valid {
			v := int(rating.Int64)
			fb.Rating = &v
		}
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feedbacks")
}

// resultColumns holds the marshaled JSON columns of a finished run.
type resultColumns struct {
	naive, private, qa, read, errors any
}

func marshalResultColumns(qc *model.QuoteCheck) (*resultColumns, error) {
	var cols resultColumns
	for _, col := range []struct {
		value any
		dest  *any
	}{
		{qc.NaiveAttributes, &cols.naive},
		{qc.PrivateDataQAAttributes, &cols.private},
		{qc.QAAttributes, &cols.qa},
		{qc.ReadAttributes, &cols.read},
		{qc.ValidationErrors, &cols.errors},
	} {
		if col.value == nil || isNilSlice(col.value) {
			continue
		}
		data, err := json.Marshal(col.value)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal result column")
		}
		*col.dest = string(data)
	}
	return &cols, nil
}

func isNilSlice(v any) bool {
	switch t := v.(type) {
	case model.Attributes:
		return t == nil
	case []model.ValidationErrorDetail:
		return t == nil
	}
	return false
}
