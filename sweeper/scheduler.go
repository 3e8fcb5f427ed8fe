// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sweeper

import (
	"sync"
	"time"
)

type ScheduledTask struct {
	interval          int
	ticksSinceLastRun int
	task              func()
}

// Scheduler runs registered tasks every N ticks. Tasks run on the scheduler
// goroutine, so a slow task delays the next tick instead of overlapping it.
type Scheduler struct {
	mutex      sync.Mutex
	interval   time.Duration
	ticker     *time.Ticker
	tickSource <-chan time.Time
	quit       chan struct{}
	done       chan struct{}
	tasks      []*ScheduledTask
	startOnce  sync.Once
	stopOnce   sync.Once
	started    bool
}

type SchedulerOptionFunc func(*Scheduler)

// WithTickSource drives the scheduler from the given channel instead of an
// internal ticker
func WithTickSource(ticks <-chan time.Time) SchedulerOptionFunc {
	return func(st *Scheduler) {
		st.tickSource = ticks
	}
}

func NewScheduler(interval time.Duration, opts ...SchedulerOptionFunc) *Scheduler {
	st := &Scheduler{
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		tasks:    []*ScheduledTask{},
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Start the timer (run goroutine once)
func (st *Scheduler) Start() {
	st.startOnce.Do(func() {
		st.mutex.Lock()
		st.started = true
		if st.tickSource == nil {
			st.ticker = time.NewTicker(st.interval)
		}
		st.mutex.Unlock()
		go st.run()
	})
}

func (st *Scheduler) ticks() <-chan time.Time {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	if st.tickSource != nil {
		return st.tickSource
	}
	return st.ticker.C
}

// Listens for tick events until Stop. A closed tick source stops ticking.
func (st *Scheduler) run() {
	defer close(st.done)
	ticks := st.ticks()
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			st.tick()
		case <-st.quit:
			if st.ticker != nil {
				st.ticker.Stop()
			}
			return
		}
	}
}

// Increments per-task tick counters and executes tasks when due
func (st *Scheduler) tick() {
	st.mutex.Lock()
	var due []func()
	for _, task := range st.tasks {
		task.ticksSinceLastRun++
		if task.ticksSinceLastRun >= task.interval {
			due = append(due, task.task)
			task.ticksSinceLastRun = 0
		}
	}
	st.mutex.Unlock()
	for _, task := range due {
		task()
	}
}

// Register adds a task that runs every interval ticks
func (st *Scheduler) Register(interval int, task func()) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.tasks = append(st.tasks, &ScheduledTask{
		interval: max(interval, 1),
		task:     task,
	})
}

// Stop terminates the scheduler and waits for a running task to finish
func (st *Scheduler) Stop() {
	st.stopOnce.Do(func() {
		close(st.quit)
		st.mutex.Lock()
		started := st.started
		st.mutex.Unlock()
		if started {
			<-st.done
		}
	})
}
