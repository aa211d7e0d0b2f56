package occasion

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/event-importer/internal/provider"
)

func stockholm(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	return loc
}

// 2024-01-01 20:00 and 23:00 in Europe/Stockholm.
const (
	start2024 = int64(1704135600)
	end2024   = int64(1704146400)
)

func TestUpsertIsIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("occasion_exists").WithArgs(int64(5), start2024, end2024).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("occasion_insert").WithArgs(int64(5), start2024, end2024, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("occasion_exists").WithArgs(int64(5), start2024, end2024).WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))

	s := NewStore(mock, stockholm(t))
	ctx := context.Background()

	res, err := s.Upsert(ctx, 5, "2024-01-01T20:00", "2024-01-01T23:00", "")
	require.NoError(t, err)
	assert.Equal(t, StatusInserted, res.Status)
	assert.Equal(t, start2024, res.Start)

	res, err = s.Upsert(ctx, 5, "2024-01-01T20:00", "2024-01-01T23:00", "")
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConflictIsDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("occasion_exists").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("occasion_insert").WillReturnResult(pgxmock.NewResult("INSERT", 0))

	res, err := NewStore(mock, time.UTC).Upsert(context.Background(), 1, "2024-01-01", "2024-01-02", "")
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertInvalidWritesNothing(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"end before start", "2024-01-02T10:00", "2024-01-01T10:00"},
		{"unparseable start", "soon", "2024-01-01T10:00"},
		{"unparseable end", "2024-01-01T10:00", ""},
		{"non-positive", "0", "0"},
		{"negative epoch", "-5", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			res, err := NewStore(mock, time.UTC).Upsert(context.Background(), 1, tt.start, tt.end, "")
			require.NoError(t, err)
			assert.Equal(t, StatusInvalid, res.Status)
			assert.NotEmpty(t, res.Reason)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpsertAllDuplicatePair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("occasion_exists").WithArgs(int64(9), start2024, end2024).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("occasion_insert").WithArgs(int64(9), start2024, end2024, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("occasion_exists").WithArgs(int64(9), start2024, end2024).WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec("occasion_warning").WithArgs(int64(9), false).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	occ := provider.Occurrence{Start: "2024-01-01T20:00", End: "2024-01-01T23:00"}
	sum, err := NewStore(mock, stockholm(t)).UpsertAll(context.Background(), 9, []provider.Occurrence{occ, occ})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Duplicate)
	assert.False(t, sum.Warning())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAllFlagsInvalid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("occasion_warning").WithArgs(int64(3), true).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sum, err := NewStore(mock, time.UTC).UpsertAll(context.Background(), 3, []provider.Occurrence{{Start: "2024-02-01", End: "2024-01-01"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Invalid)
	assert.True(t, sum.Warning())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredAndCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM occasions").WithArgs(now.Unix()).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectQuery("SELECT COUNT").WithArgs(now.Unix()).
		WillReturnRows(pgxmock.NewRows([]string{"total", "upcoming", "events"}).AddRow(int64(10), int64(4), int64(3)))

	s := NewStore(mock, time.UTC)
	n, err := s.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	c, err := s.Counts(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 10, Upcoming: 4, Expired: 6, Events: 3}, c)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseTimestamp(t *testing.T) {
	loc := stockholm(t)
	tests := []struct {
		in   string
		want int64
	}{
		{"2024-01-01T20:00", start2024},
		{"2024-01-01 20:00:00", start2024},
		{"2024-01-01T19:00:00Z", start2024},
		{"1704135600", start2024},
		{"1704135600000", start2024},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in, loc)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseTimestamp("tomorrow", loc)
	assert.Error(t, err)
}
