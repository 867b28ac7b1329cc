package campaign

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unclebandit/thunderlink/internal/model"
)

// run is one campaign. Only its loop goroutine writes progress; readers take
// a copy under mu, which is never held across a send.
type run struct {
	recipients []model.Recipient
	opts       Options

	ctx    context.Context
	cancel context.CancelFunc

	stopRequested atomic.Bool
	discarded     atomic.Bool
	stopCh        chan struct{}
	stopOnce      sync.Once
	done          chan struct{}

	mu       sync.Mutex
	progress model.Progress
}

func newRun(recipients []model.Recipient, opts Options) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		recipients: recipients,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		progress: model.Progress{
			Total:   len(recipients),
			Logs:    []string{},
			Running: true,
		},
	}
}

func (r *run) requestStop() {
	r.stopRequested.Store(true)
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// discard detaches the run: it stops at its next check and any in-flight
// send sees a cancelled context.
func (r *run) discard() {
	r.discarded.Store(true)
	r.requestStop()
	r.cancel()
}

func (r *run) snapshot() model.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.progress
	p.Logs = append([]string(nil), r.progress.Logs...)
	return p
}

func (r *run) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress.Running
}

// record counts one attempt and appends its log line.
func (r *run) record(ok bool, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.progress.Success++
	} else {
		r.progress.Failed++
	}
	r.progress.CurrentIndex++
	r.progress.Logs = append(r.progress.Logs, line)
}

func (r *run) log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Logs = append(r.progress.Logs, line)
}

// finish ends the run, optionally appending a final log line.
func (r *run) finish(stopped bool, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if line != "" {
		r.progress.Logs = append(r.progress.Logs, line)
	}
	r.progress.Running = false
	r.progress.Stopped = stopped
}
