package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	queries []string
	failAt  int
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	r.queries = append(r.queries, query)
	if len(r.queries) == r.failAt {
		return nil, errors.New("syntax error")
	}
	return nil, nil
}

func TestExecAllStopsAtFirstFailure(t *testing.T) {
	rec := &recordingExecer{failAt: 2}
	err := ExecAll(context.Background(), rec, "CREATE A", "CREATE B", "CREATE C")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2")
	assert.Equal(t, []string{"CREATE A", "CREATE B"}, rec.queries)
}

func TestExecAllRunsEverything(t *testing.T) {
	rec := &recordingExecer{}
	require.NoError(t, ExecAll(context.Background(), rec, "CREATE A", "CREATE B"))
	assert.Len(t, rec.queries, 2)
}

func TestNewPostgresDBRejectsEmptyDSN(t *testing.T) {
	_, err := NewPostgresDB(context.Background(), " ")
	assert.Error(t, err)
}
