package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/testutil"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	errBoom := errors.New("boom")

	insert := func(exec core.DBExecutor, name string) error {
		_, err := exec.ExecContext(ctx, exec.Rebind("INSERT INTO peer_groups (name, created_at) VALUES (?, ?)"), name, time.Now().UTC())
		return err
	}
	count := func() int {
		var n int
		require.NoError(t, db.GetContext(ctx, &n, "SELECT COUNT(*) FROM peer_groups"))
		return n
	}

	require.NoError(t, core.WithTx(ctx, db, func(tx core.DBExecutor) error {
		return insert(tx, "committed")
	}))
	assert.Equal(t, 1, count())

	err := core.WithTx(ctx, db, func(tx core.DBExecutor) error {
		if err := insert(tx, "rolled back"); err != nil {
			return err
		}
		return errBoom
	})
	assert.Equal(t, errBoom, errors.Cause(err))
	assert.Equal(t, 1, count())

	assert.Panics(t, func() {
		_ = core.WithTx(ctx, db, func(tx core.DBExecutor) error {
			_ = insert(tx, "panicked")
			panic("lol")
		})
	})
	assert.Equal(t, 1, count())

	t.Run("savepoints", func(t *testing.T) {
		err := core.WithTx(ctx, db, func(tx core.DBExecutor) error {
			for i, name := range []string{"a", "b", "c"} {
				spErr := core.WithSavepoint(ctx, tx, core.SavepointName("sp", i), func() error {
					if err := insert(tx, name); err != nil {
						return err
					}
					if name == "b" {
						return errBoom
					}
					return nil
				})
				if name == "b" {
					assert.Equal(t, errBoom, spErr)
				} else {
					assert.NoError(t, spErr)
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, count())

		var names []string
		require.NoError(t, db.SelectContext(ctx, &names, "SELECT name FROM peer_groups ORDER BY id"))
		assert.Equal(t, []string{"committed", "a", "c"}, names)
	})
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		p          core.Pagination
		total      int
		wantOffset int
		wantPages  int
	}{
		{name: "first page", p: core.Pagination{Page: 1, Limit: 20}, total: 45, wantOffset: 0, wantPages: 3},
		{name: "third page", p: core.Pagination{Page: 3, Limit: 20}, total: 45, wantOffset: 40, wantPages: 3},
		{name: "exact fit", p: core.Pagination{Page: 2, Limit: 5}, total: 10, wantOffset: 5, wantPages: 2},
		{name: "nothing", p: core.Pagination{Page: 1, Limit: 5}, total: 0, wantOffset: 0, wantPages: 0},
		{name: "no page", p: core.Pagination{Limit: 5}, total: 3, wantOffset: 0, wantPages: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOffset, tt.p.Offset())
			assert.Equal(t, tt.wantPages, tt.p.TotalPages(tt.total))
		})
	}
}
