package executor

import (
	"sync/atomic"
	"testing"
)

func TestGo_RunsAllTasks(t *testing.T) {
	g := NewGo()
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		g.Execute(func() { n.Add(1) }, "count")
	}
	g.Wait()
	if got := n.Load(); got != 50 {
		t.Errorf("tasks run: got %d, want 50", got)
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	g := NewGo()
	ran := make(chan struct{})
	g.Execute(func() { panic("boom") }, "panics")
	g.Execute(func() { close(ran) }, "after")
	g.Wait()
	select {
	case <-ran:
	default:
		t.Fatal("task after a panicking task did not run")
	}
}

func TestInline_RunsSynchronously(t *testing.T) {
	var ran bool
	Inline{}.Execute(func() { ran = true }, "inline")
	if !ran {
		t.Error("Inline.Execute returned before running the task")
	}
}

func TestInline_RecoversPanic(t *testing.T) {
	Inline{}.Execute(func() { panic("boom") }, "inline-panic")
}
