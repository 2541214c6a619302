package testutil

import (
	"net/http"
	"sync"
)

// Blocker blocks callers of Block until Release is called, and signals each caller's arrival on Entered.
type Blocker struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func NewBlocker() *Blocker {
	return &Blocker{
		entered: make(chan struct{}, 64),
		release: make(chan struct{}),
	}
}

func (b *Blocker) Block() {
	b.entered <- struct{}{}
	<-b.release
}

// Entered returns a channel that receives once per call to Block.
func (b *Blocker) Entered() <-chan struct{} {
	return b.entered
}

func (b *Blocker) Release() {
	b.once.Do(func() {
		close(b.release)
	})
}

// Handler returns an http.Handler that blocks until Release is called, then responds with http.StatusOK.
func (b *Blocker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.Block()
		w.WriteHeader(http.StatusOK)
	})
}
