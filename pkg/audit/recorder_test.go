package audit

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmguard/scmguard/pkg/authz"
	"github.com/scmguard/scmguard/pkg/observability"
)

func newRecorder(t *testing.T) (*DBRecorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDBRecorder(db, observability.NewLogger(observability.ErrorLevel, io.Discard)), mock
}

func TestInsertDecision(t *testing.T) {
	recorder, mock := newRecorder(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO authz_decisions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := recorder.insert(context.Background(), &DecisionEvent{
		Timestamp:      time.Now().UTC(),
		AccountID:      7,
		ProviderUserID: "u-1",
		Provider:       "github",
		Action:         authz.ActionWrite,
		Resource:       authz.ResourceRepositories,
		Outcome:        OutcomeAllowed,
		RequestedIDs:   []authz.EntityID{5},
		AllowedIDs:     []authz.EntityID{5},
		RequestID:      "req-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentDecisions(t *testing.T) {
	recorder, mock := newRecorder(t)
	now := time.Now().UTC()

	cols := []string{"id", "timestamp", "account_id", "provider_user_id", "provider",
		"action", "resource", "outcome", "requested_ids", "allowed_ids", "request_id"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM authz_decisions")).
		WithArgs(int64(7), 100).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, now, 7, "u-1", "github", "write", "Repositories", "forbidden", []byte(`[9]`), []byte(`null`), "req-2").
			AddRow(1, now.Add(-time.Minute), 7, "u-1", "github", "read", "Teams", "allowed", []byte(`null`), []byte(`[3,4]`), "req-1"))

	events, err := recorder.RecentDecisions(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, OutcomeForbidden, events[0].Outcome)
	assert.Equal(t, []authz.EntityID{9}, events[0].RequestedIDs)
	assert.Equal(t, []authz.EntityID{3, 4}, events[1].AllowedIDs)
}

func TestNopRecorder(t *testing.T) {
	NopRecorder{}.Record(context.Background(), &DecisionEvent{})
}
