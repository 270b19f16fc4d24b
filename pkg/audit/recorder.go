package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scmguard/scmguard/pkg/async"
	"github.com/scmguard/scmguard/pkg/observability"
)

// Recorder persists authorization decisions
type Recorder interface {
	// Record persists the event. Implementations must not block the
	// request path; failures are logged, never surfaced to the caller.
	Record(ctx context.Context, event *DecisionEvent)
}

const recordTimeout = 5 * time.Second

// DBRecorder writes decision events to PostgreSQL in the background.
// A lost audit row is preferable to a failed or slowed authorization
// check, so writes are fire-and-forget.
type DBRecorder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBRecorder creates a database-backed decision recorder
func NewDBRecorder(db *sql.DB, logger *observability.Logger) *DBRecorder {
	return &DBRecorder{db: db, logger: logger}
}

// Record persists the event asynchronously
func (r *DBRecorder) Record(_ context.Context, event *DecisionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	async.SafeGo(r.logger, recordTimeout, "audit decision write", func(ctx context.Context) error {
		return r.insert(ctx, event)
	})
}

func (r *DBRecorder) insert(ctx context.Context, event *DecisionEvent) error {
	requested, err := json.Marshal(event.RequestedIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal requested ids: %w", err)
	}
	allowed, err := json.Marshal(event.AllowedIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed ids: %w", err)
	}

	query := `
		INSERT INTO authz_decisions (
			timestamp, account_id, provider_user_id, provider,
			action, resource, outcome, requested_ids, allowed_ids, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.ExecContext(ctx, query,
		event.Timestamp, event.AccountID, event.ProviderUserID, event.Provider,
		event.Action, event.Resource, event.Outcome, requested, allowed,
		event.RequestID,
	); err != nil {
		return fmt.Errorf("failed to insert decision event: %w", err)
	}
	return nil
}

// RecentDecisions returns the newest decision events for an account,
// newest first. Backs the account activity view.
func (r *DBRecorder) RecentDecisions(ctx context.Context, accountID int64, limit int) ([]DecisionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, timestamp, account_id, provider_user_id, provider,
		       action, resource, outcome, requested_ids, allowed_ids, request_id
		FROM authz_decisions
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var events []DecisionEvent
	for rows.Next() {
		var event DecisionEvent
		var requested, allowed []byte
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.AccountID, &event.ProviderUserID,
			&event.Provider, &event.Action, &event.Resource, &event.Outcome,
			&requested, &allowed, &event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision event: %w", err)
		}
		if len(requested) > 0 {
			if err := json.Unmarshal(requested, &event.RequestedIDs); err != nil {
				return nil, fmt.Errorf("corrupt requested ids for decision %d: %w", event.ID, err)
			}
		}
		if len(allowed) > 0 {
			if err := json.Unmarshal(allowed, &event.AllowedIDs); err != nil {
				return nil, fmt.Errorf("corrupt allowed ids for decision %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// NopRecorder discards all events. Used in tests and when auditing is
// disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *DecisionEvent) {}
