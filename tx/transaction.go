package tx

import (
	"context"
	"sync"

	"github.com/Hain2000/docindex/data"
	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
)

var (
	ErrTxCommitted  = errors.New("the transaction is committed")
	ErrTxRollbacked = errors.New("the transaction is rollbacked")
)

// Participant 参与事务的索引
type Participant interface {
	Name() string
	// BeginTx 索引第一次在事务里被修改时调用
	BeginTx()
	// CommitChanges 把日志回放到索引上
	CommitChanges(ctx context.Context, changes *IndexChanges) error
	// RollbackChanges 丢弃日志
	RollbackChanges(changes *IndexChanges)
}

type Status int8

const (
	StatusActive Status = iota
	StatusCommitted
	StatusRollbacked
)

var (
	defaultNode     *snowflake.Node
	defaultNodeOnce sync.Once
)

func nodeOrDefault(node *snowflake.Node) *snowflake.Node {
	if node != nil {
		return node
	}
	defaultNodeOnce.Do(func() {
		n, err := snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
		defaultNode = n
	})
	return defaultNode
}

// Transaction 只能在一个 goroutine 里使用，不加锁
type Transaction struct {
	id           snowflake.ID
	status       Status
	changes      map[string]*IndexChanges
	participants map[string]Participant
	order        []string // 第一次修改的顺序
}

// Begin 开启一个事务，node 为 nil 时使用默认的 id 生成器
func Begin(node *snowflake.Node) *Transaction {
	return &Transaction{
		id:           nodeOrDefault(node).Generate(),
		changes:      make(map[string]*IndexChanges),
		participants: make(map[string]Participant),
	}
}

func (t *Transaction) ID() snowflake.ID { return t.id }

func (t *Transaction) Status() Status { return t.status }

func (t *Transaction) active() error {
	switch t.status {
	case StatusCommitted:
		return ErrTxCommitted
	case StatusRollbacked:
		return ErrTxRollbacked
	}
	return nil
}

// IndexChanges 事务对某个索引的修改，没有修改返回 nil
func (t *Transaction) IndexChanges(name string) *IndexChanges {
	return t.changes[name]
}

// Enlist 取得（或者创建）索引的修改日志
func (t *Transaction) Enlist(p Participant) (*IndexChanges, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	name := p.Name()
	if c, ok := t.changes[name]; ok {
		return c, nil
	}
	p.BeginTx()
	c := NewIndexChanges(name)
	t.changes[name] = c
	t.participants[name] = p
	t.order = append(t.order, name)
	return c, nil
}

// AddIndexEntry 在索引 p 的键 k 上记录一条操作
func (t *Transaction) AddIndexEntry(p Participant, k any, op Operation, v data.RID) error {
	c, err := t.Enlist(p)
	if err != nil {
		return err
	}
	return c.Add(k, op, v)
}

// Commit 按索引第一次被修改的顺序提交
func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.active(); err != nil {
		return err
	}
	defer t.discard()

	for i, name := range t.order {
		c := t.changes[name]
		c.beginCommit()
		err := t.participants[name].CommitChanges(ctx, c)
		c.finish()
		if err != nil {
			// 剩下的索引不再提交
			for _, rest := range t.order[i+1:] {
				t.participants[rest].RollbackChanges(t.changes[rest])
				t.changes[rest].finish()
			}
			t.status = StatusRollbacked
			return errors.Wrapf(err, "commit index %s", name)
		}
	}
	t.status = StatusCommitted
	return nil
}

func (t *Transaction) Rollback() error {
	if err := t.active(); err != nil {
		return err
	}
	for _, name := range t.order {
		t.participants[name].RollbackChanges(t.changes[name])
		t.changes[name].finish()
	}
	t.discard()
	t.status = StatusRollbacked
	return nil
}

func (t *Transaction) discard() {
	t.changes = make(map[string]*IndexChanges)
	t.participants = make(map[string]Participant)
	t.order = nil
}
