package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Reporter answers the read-side questions an operator or the reconciler
// asks of the audit trail: what did we issue, and did we ever hear back.
// It is deliberately separate from Store (which only appends) and opens its
// own sqlx connection over lib/pq, since reporting queries are read-only
// and benefit from sqlx's struct scanning rather than pgx's row API.
type Reporter struct {
	db *sqlx.DB
}

// OpenReporter connects a Reporter to dsn using the lib/pq driver.
func OpenReporter(dsn string) (*Reporter, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open reporting connection: %w", err)
	}
	return &Reporter{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *Reporter) Close() error {
	return r.db.Close()
}

// ForIncident returns every audit_log row for incidentID, oldest first.
func (r *Reporter) ForIncident(ctx context.Context, incidentID string) ([]Entry, error) {
	var rows []Entry
	err := r.db.SelectContext(ctx, &rows, `
		SELECT ref, incident_id, kind, target_system, verb, args_json, status, reason, created_at
		FROM audit_log
		WHERE incident_id = $1
		ORDER BY created_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query audit log for incident %s: %w", incidentID, err)
	}
	return rows, nil
}

// Orphaned returns refs with an "issued" row but no matching "result" row —
// the set a process crashing between AppendIssued and AppendResult leaves
// behind, which the reconciler must re-check against live adapter state.
func (r *Reporter) Orphaned(ctx context.Context) ([]string, error) {
	var refs []string
	err := r.db.SelectContext(ctx, &refs, `
		SELECT i.ref
		FROM audit_log i
		WHERE i.kind = 'issued'
		  AND NOT EXISTS (
		    SELECT 1 FROM audit_log r WHERE r.ref = i.ref AND r.kind = 'result'
		  )`)
	if err != nil {
		return nil, fmt.Errorf("query orphaned audit entries: %w", err)
	}
	return refs, nil
}
