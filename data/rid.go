package data

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrTemporaryIdentity = errors.New("record identity is temporary and cannot be persisted")
	ErrInvalidRID        = errors.New("invalid record id")
)

// RID 记录在存储里的身份: 簇 + 位置
type RID struct {
	Cluster  int32
	Position int64
}

// NullRID 表示"没有值"，在事务日志里代表删除整个键
var NullRID = RID{Cluster: -1, Position: -1}

func NewRID(cluster int32, position int64) RID {
	return RID{Cluster: cluster, Position: position}
}

func (r RID) IsValid() bool { return r.Cluster >= 0 }

func (r RID) IsNull() bool { return r == NullRID }

// IsPersistent 临时 RID 的 position 小于 0，提交之前还没分配真实的位置
func (r RID) IsPersistent() bool { return r.Cluster >= 0 && r.Position >= 0 }

func (r RID) Identity() RID { return r }

func (r RID) CompareTo(other any) int {
	o := other.(RID)
	if c := cmp.Compare(r.Cluster, o.Cluster); c != 0 {
		return c
	}
	return cmp.Compare(r.Position, o.Position)
}

func (r RID) String() string {
	return fmt.Sprintf("#%d:%d", r.Cluster, r.Position)
}

// ParseRID 解析 "#12:34" 格式
func ParseRID(s string) (RID, error) {
	c, p, ok := strings.Cut(strings.TrimPrefix(s, "#"), ":")
	if !ok {
		return NullRID, errors.Wrapf(ErrInvalidRID, "%q", s)
	}
	cluster, err := strconv.ParseInt(c, 10, 32)
	if err != nil {
		return NullRID, errors.Wrapf(ErrInvalidRID, "%q", s)
	}
	pos, err := strconv.ParseInt(p, 10, 64)
	if err != nil {
		return NullRID, errors.Wrapf(ErrInvalidRID, "%q", s)
	}
	return RID{Cluster: int32(cluster), Position: pos}, nil
}

// Identifiable 可以被索引引用的对象
type Identifiable interface {
	Identity() RID
}

// Persister 能在写入索引之前把自己保存下来，拿到一个持久的 RID
type Persister interface {
	Identifiable
	Persist(ctx context.Context) (RID, error)
}

// ResolveIdentity 返回可以写进索引的 RID，临时身份会先被持久化
func ResolveIdentity(ctx context.Context, v Identifiable) (RID, error) {
	rid := v.Identity()
	if rid.IsPersistent() {
		return rid, nil
	}
	p, ok := v.(Persister)
	if !ok {
		return NullRID, errors.Wrapf(ErrTemporaryIdentity, "%s", rid)
	}
	rid, err := p.Persist(ctx)
	if err != nil {
		return NullRID, err
	}
	if !rid.IsPersistent() {
		return NullRID, errors.Wrapf(ErrTemporaryIdentity, "%s", rid)
	}
	return rid, nil
}
