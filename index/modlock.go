package index

import "sync"

// modificationLock 冻结索引的写操作，读不受影响
// freeze 可以嵌套，每一层记录写操作是等待还是直接失败
type modificationLock struct {
	mu       sync.Mutex
	cond     *sync.Cond
	writers  int
	freezes  []bool
	draining int
}

func newModificationLock() *modificationLock {
	l := &modificationLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *modificationLock) throwing() bool {
	for _, t := range l.freezes {
		if t {
			return true
		}
	}
	return false
}

// acquire 写操作开始前调用
func (l *modificationLock) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.freezes) > 0 || l.draining > 0 {
		if l.throwing() {
			return ErrIndexFrozen
		}
		l.cond.Wait()
	}
	l.writers++
	return nil
}

func (l *modificationLock) release() {
	l.mu.Lock()
	l.writers--
	if l.writers == 0 {
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

// freeze 等正在进行的写操作结束
func (l *modificationLock) freeze(throwOnWrite bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.freezes = append(l.freezes, throwOnWrite)
	for l.writers > 0 {
		l.cond.Wait()
	}
}

// drain 等正在进行的写操作结束后在锁内执行 fn，fn 执行期间不会有新的写操作开始
func (l *modificationLock) drain(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.draining++
	for l.writers > 0 {
		l.cond.Wait()
	}
	fn()
	l.draining--
	l.cond.Broadcast()
}

func (l *modificationLock) unfreeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.freezes) == 0 {
		return
	}
	l.freezes = l.freezes[:len(l.freezes)-1]
	l.cond.Broadcast()
}

func (l *modificationLock) frozen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.freezes) > 0
}
