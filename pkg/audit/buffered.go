package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// job is one pending write for BufferedStore's background writer.
type job struct {
	kind       Kind
	ref        string
	incidentID string
	cmd        incident.CommandSpec
	result     incident.ExecutionRecord
}

const (
	bufferedQueueSize = 256
	writeTimeout      = 10 * time.Second
)

// BufferedStore wraps a Store so the Executor's hot path never blocks on a
// Postgres round trip: AppendIssued/AppendResult hand their write off to a
// bounded channel and return immediately, while a single background
// goroutine drains the channel and performs the inserts in the order they
// were enqueued. Serializing writes through one goroutine, rather than the
// concurrent ExecContext calls Store makes directly, is what keeps the log
// append-only under concurrent incidents without relying on DB-side locking.
type BufferedStore struct {
	store  *Store
	logger *zap.Logger
	jobs   chan job
	done   chan struct{}
}

// NewBufferedStore wraps store and starts its background writer.
func NewBufferedStore(store *Store, logger *zap.Logger) *BufferedStore {
	b := &BufferedStore{
		store:  store,
		logger: logger,
		jobs:   make(chan job, bufferedQueueSize),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// AppendIssued generates the ref synchronously — callers need it immediately
// to pass to the matching AppendResult — and enqueues the insert for the
// background writer. The only error this returns is a full queue; a write
// failure surfaces later, logged by the writer, since the caller has already
// moved on.
func (b *BufferedStore) AppendIssued(ctx context.Context, incidentID string, cmd incident.CommandSpec) (string, error) {
	ref := uuid.NewString()
	select {
	case b.jobs <- job{kind: KindIssued, ref: ref, incidentID: incidentID, cmd: cmd}:
		return ref, nil
	default:
		return "", fmt.Errorf("audit write queue full")
	}
}

// AppendResult enqueues the post-execution half of ref's audit trail.
func (b *BufferedStore) AppendResult(ctx context.Context, ref string, rec incident.ExecutionRecord) error {
	select {
	case b.jobs <- job{kind: KindResult, ref: ref, result: rec}:
		return nil
	default:
		return fmt.Errorf("audit write queue full")
	}
}

// Close stops accepting new jobs, waits for the queue to drain, and closes
// the underlying store.
func (b *BufferedStore) Close() error {
	close(b.jobs)
	<-b.done
	return b.store.Close()
}

func (b *BufferedStore) run() {
	defer close(b.done)
	for j := range b.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		switch j.kind {
		case KindIssued:
			err = b.store.insertIssued(ctx, j.ref, j.incidentID, j.cmd)
		case KindResult:
			err = b.store.AppendResult(ctx, j.ref, j.result)
		}
		cancel()
		if err != nil {
			b.logger.Error("audit write failed", zap.Error(err), zap.String("ref", j.ref), zap.String("kind", string(j.kind)))
		}
	}
}
