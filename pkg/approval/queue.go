// Package approval holds ApprovalRequests the Autonomy Gate has suspended,
// mutable only via an operator's accept/reject decision (spec.md §6).
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

const (
	keyPrefix  = "sentinel:approval:"
	pendingSet = "sentinel:approval:pending"
)

// ErrNotFound is returned when an ApprovalRequest id has no backing entry.
var ErrNotFound = fmt.Errorf("approval request not found")

// ErrAlreadyDecided is returned when Decide is called on a request that is
// no longer pending.
var ErrAlreadyDecided = fmt.Errorf("approval request already decided")

// Queue stores ApprovalRequests in Redis, keyed by id, with a secondary set
// tracking which ids are still pending so the operator-facing list doesn't
// need to scan every key.
type Queue struct {
	rdb *redis.Client
}

// NewQueue builds a Queue over an existing Redis client.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func reqKey(id string) string {
	return keyPrefix + id
}

// Enqueue stores a new, pending ApprovalRequest.
func (q *Queue) Enqueue(ctx context.Context, req incident.ApprovalRequest) error {
	req.Decision = incident.DecisionPending
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal approval request %s: %w", req.ID, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, reqKey(req.ID), data, 0)
	pipe.SAdd(ctx, pendingSet, req.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue approval request %s: %w", req.ID, err)
	}
	return nil
}

// Get returns the ApprovalRequest stored under id.
func (q *Queue) Get(ctx context.Context, id string) (incident.ApprovalRequest, error) {
	data, err := q.rdb.Get(ctx, reqKey(id)).Bytes()
	if err == redis.Nil {
		return incident.ApprovalRequest{}, ErrNotFound
	}
	if err != nil {
		return incident.ApprovalRequest{}, fmt.Errorf("get approval request %s: %w", id, err)
	}
	var req incident.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return incident.ApprovalRequest{}, fmt.Errorf("unmarshal approval request %s: %w", id, err)
	}
	return req, nil
}

// Pending lists every ApprovalRequest still awaiting a decision.
func (q *Queue) Pending(ctx context.Context) ([]incident.ApprovalRequest, error) {
	ids, err := q.rdb.SMembers(ctx, pendingSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending approval requests: %w", err)
	}
	out := make([]incident.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		req, err := q.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// Decide records an operator's decision on a pending request. It is the
// only way an ApprovalRequest's Decision field ever changes — Enqueue
// always writes DecisionPending.
func (q *Queue) Decide(ctx context.Context, id string, decision incident.ApprovalDecision, decidedBy, comment string) (incident.ApprovalRequest, error) {
	req, err := q.Get(ctx, id)
	if err != nil {
		return incident.ApprovalRequest{}, err
	}
	if req.Decision != incident.DecisionPending {
		return incident.ApprovalRequest{}, ErrAlreadyDecided
	}

	req.Decision = decision
	req.DecidedBy = decidedBy
	req.Comment = comment
	req.DecidedAt = time.Now()

	data, err := json.Marshal(req)
	if err != nil {
		return incident.ApprovalRequest{}, fmt.Errorf("marshal decided approval request %s: %w", id, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, reqKey(id), data, 0)
	pipe.SRem(ctx, pendingSet, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return incident.ApprovalRequest{}, fmt.Errorf("record decision for approval request %s: %w", id, err)
	}
	return req, nil
}
