package executor

import (
	"log/slog"
	"sync"
)

// Executor runs task on an independent concurrency context. label names the
// task for logs.
type Executor interface {
	Execute(task func(), label string)
}

// Go runs every task on a new goroutine. A panicking task is recovered and
// logged so one misbehaving callback cannot take down the process.
//
// The zero value is ready to use.
type Go struct {
	wg sync.WaitGroup
}

// NewGo returns a goroutine executor.
func NewGo() *Go { return &Go{} }

// Execute starts task on a new goroutine.
func (g *Go) Execute(task func(), label string) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer recoverTask(label)
		task()
	}()
}

// Wait blocks until every task started so far has returned.
func (g *Go) Wait() { g.wg.Wait() }

// Inline runs tasks synchronously on the calling goroutine.
type Inline struct{}

// Execute runs task before returning.
func (Inline) Execute(task func(), label string) {
	defer recoverTask(label)
	task()
}

func recoverTask(label string) {
	if r := recover(); r != nil {
		slog.Error("executor: task panicked", "task", label, "panic", r)
	}
}
