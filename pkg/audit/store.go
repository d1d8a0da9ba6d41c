package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is what the Executor depends on to persist command attempts. It is
// the storage-backed implementation of executor.AuditAppender, built over
// database/sql via pgx's stdlib driver so it can share goose's migration
// runner and be exercised with go-sqlmock in tests.
type Store struct {
	db *sql.DB
}

// Open connects a Store to dsn through pgx's database/sql driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit connection: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open *sql.DB, primarily for tests that hand in
// a go-sqlmock connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies every pending migration using goose.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// AppendIssued writes the pre-execution half of a command's audit trail and
// returns the ref future AppendResult calls must reuse.
func (s *Store) AppendIssued(ctx context.Context, incidentID string, cmd incident.CommandSpec) (string, error) {
	ref := uuid.NewString()
	if err := s.insertIssued(ctx, ref, incidentID, cmd); err != nil {
		return "", err
	}
	return ref, nil
}

// insertIssued performs the actual insert against a caller-supplied ref, so
// BufferedStore can generate the ref synchronously and defer the write.
func (s *Store) insertIssued(ctx context.Context, ref, incidentID string, cmd incident.CommandSpec) error {
	argsJSON, err := json.Marshal(cmd.Args)
	if err != nil {
		return fmt.Errorf("marshal command args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ref, incident_id, kind, target_system, verb, args_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ref, incidentID, KindIssued, cmd.TargetSystem, cmd.Verb, argsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert issued audit entry: %w", err)
	}
	return nil
}

// AppendResult writes the post-execution half of a command's audit trail,
// linked to its issued counterpart by ref.
func (s *Store) AppendResult(ctx context.Context, ref string, rec incident.ExecutionRecord) error {
	argsJSON, err := json.Marshal(rec.Command.Args)
	if err != nil {
		return fmt.Errorf("marshal command args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ref, incident_id, kind, target_system, verb, args_json, status, reason, created_at)
		VALUES ($1, '', $2, $3, $4, $5, $6, $7, $8)`,
		ref, KindResult, rec.Command.TargetSystem, rec.Command.Verb, argsJSON, string(rec.Status), rec.Reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert result audit entry: %w", err)
	}
	return nil
}
