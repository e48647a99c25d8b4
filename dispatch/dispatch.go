// Copyright 2024-2025 Proxium, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch provides serial task execution loops. A Loop models an
// execution context that owns some state: all tasks posted to a loop run,
// in order, on a single goroutine, so state touched only by that loop's
// tasks needs no further synchronization.
package dispatch

import (
	"sync"
	"time"

	"github.com/proxium/logicaldns/internal"
)

const taskBufferSize = 64

// Loop is a serial task executor backed by a single goroutine. The
// goroutine is started by NewLoop and stopped by Close.
type Loop struct {
	tasks      chan func()
	quit       chan struct{}
	doneSignal chan struct{}
	closeOnce  sync.Once
}

// NewLoop creates a running loop.
func NewLoop() *Loop {
	loop := &Loop{
		tasks:      make(chan func(), taskBufferSize),
		quit:       make(chan struct{}),
		doneSignal: make(chan struct{}),
	}
	go loop.run()
	return loop
}

func (l *Loop) run() {
	defer close(l.doneSignal)
	for {
		select {
		case <-l.quit:
			return
		case task := <-l.tasks:
			task()
		}
	}
}

// Post enqueues task to run on the loop's goroutine. Tasks run in the
// order they were posted. After Close, tasks are silently dropped; tasks
// still queued when Close is called may also be dropped.
func (l *Loop) Post(task func()) {
	select {
	case <-l.quit:
	case l.tasks <- task:
	}
}

// Do posts task and waits for it to finish. It returns early if the loop
// shuts down before the task runs. It must not be called from a task
// already running on the loop, which would deadlock.
func (l *Loop) Do(task func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		task()
	})
	select {
	case <-done:
	case <-l.doneSignal:
	}
}

// Close stops the loop goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		close(l.quit)
	})
	<-l.doneSignal
	return nil
}

// Timer runs a task on its owning loop after a delay. Enable and Disable
// must themselves be called on the owning loop; only the underlying clock
// callback runs elsewhere, and it does nothing but post.
type Timer struct {
	loop  *Loop
	clock internal.Clock
	task  func()

	// The fields below are owned by the loop. The generation counter lets
	// Disable suppress a fire that the clock has already queued.
	gen     uint64
	enabled bool
	pending internal.Timer
}

// NewTimer creates a disarmed timer that will run task on loop when fired.
func NewTimer(loop *Loop, clock internal.Clock, task func()) *Timer {
	return &Timer{loop: loop, clock: clock, task: task}
}

// Enable arms the timer to fire once after d, replacing any prior arming.
func (t *Timer) Enable(d time.Duration) {
	t.gen++
	t.enabled = true
	gen := t.gen
	if t.pending != nil {
		t.pending.Stop()
	}
	t.pending = t.clock.AfterFunc(d, func() {
		t.loop.Post(func() {
			t.fire(gen)
		})
	})
}

// Disable disarms the timer. A fire already in flight will not run.
func (t *Timer) Disable() {
	t.gen++
	t.enabled = false
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) fire(gen uint64) {
	if !t.enabled || gen != t.gen {
		return
	}
	t.enabled = false
	t.pending = nil
	t.task()
}
