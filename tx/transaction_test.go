package tx

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParticipant struct {
	name       string
	begun      int
	committed  []*IndexChanges
	rolledBack int
	fail       error
}

func (p *fakeParticipant) Name() string { return p.name }
func (p *fakeParticipant) BeginTx()     { p.begun++ }

func (p *fakeParticipant) CommitChanges(_ context.Context, c *IndexChanges) error {
	if c.State() != StateCommitting {
		return errors.New("not committing")
	}
	p.committed = append(p.committed, c)
	return p.fail
}

func (p *fakeParticipant) RollbackChanges(*IndexChanges) { p.rolledBack++ }

func TestTransaction_Commit(t *testing.T) {
	a := &fakeParticipant{name: "a"}
	b := &fakeParticipant{name: "b"}

	trx := Begin(nil)
	assert.NotZero(t, trx.ID())
	assert.NotEqual(t, trx.ID(), Begin(nil).ID())

	require.NoError(t, trx.AddIndexEntry(a, "k", OpPut, r1))
	require.NoError(t, trx.AddIndexEntry(a, "k", OpPut, r2))
	require.NoError(t, trx.AddIndexEntry(b, "k", OpRemove, r1))
	assert.Equal(t, 1, a.begun)
	assert.NotNil(t, trx.IndexChanges("a"))
	assert.Nil(t, trx.IndexChanges("c"))

	changes := trx.IndexChanges("a")
	require.NoError(t, trx.Commit(context.Background()))
	assert.Len(t, a.committed, 1)
	assert.Len(t, b.committed, 1)
	assert.Equal(t, StateDone, changes.State())
	assert.Equal(t, StatusCommitted, trx.Status())
	assert.Nil(t, trx.IndexChanges("a"))

	assert.ErrorIs(t, trx.Commit(context.Background()), ErrTxCommitted)
	assert.ErrorIs(t, trx.AddIndexEntry(a, "k", OpPut, r1), ErrTxCommitted)
}

func TestTransaction_CommitFailure(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeParticipant{name: "a", fail: boom}
	b := &fakeParticipant{name: "b"}

	trx := Begin(nil)
	require.NoError(t, trx.AddIndexEntry(a, "k", OpPut, r1))
	require.NoError(t, trx.AddIndexEntry(b, "k", OpPut, r1))

	err := trx.Commit(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.committed)
	assert.Equal(t, 1, b.rolledBack)
	assert.Equal(t, StatusRollbacked, trx.Status())
}

func TestTransaction_Rollback(t *testing.T) {
	a := &fakeParticipant{name: "a"}
	trx := Begin(nil)
	require.NoError(t, trx.AddIndexEntry(a, "k", OpPut, r1))
	require.NoError(t, trx.Rollback())
	assert.Equal(t, 1, a.rolledBack)
	assert.Empty(t, a.committed)
	assert.ErrorIs(t, trx.Rollback(), ErrTxRollbacked)
}
