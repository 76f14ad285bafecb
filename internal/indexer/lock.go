package indexer

import "sync/atomic"

// IndexLock serialises writers to one index. It never blocks: a caller that
// loses TryAcquire reports ErrAnalysisInProgress instead of waiting, and
// searches check Held so they never read a half-written run.
type IndexLock struct {
	busy atomic.Bool
}

func (l *IndexLock) TryAcquire() bool {
	return l.busy.CompareAndSwap(false, true)
}

// Release must only be called by the holder.
func (l *IndexLock) Release() {
	l.busy.Store(false)
}

func (l *IndexLock) Held() bool {
	return l.busy.Load()
}
