package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasse-pos/internal/obs"
)

type job struct {
	key    string
	stacks Stacks
	delete bool
}

// Persister writes history stacks to a Store in the background. Pending work is coalesced per
// key: a newer save or delete for a session replaces that session's queued job, and jobs of
// other sessions are never touched. Memory is bounded by the number of sessions with pending work.
// Write failures are logged and counted, never reported to the mutation that caused them.
type Persister struct {
	store   Store
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]job
	order   []string
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// PersisterConfig configures a Persister.
type PersisterConfig struct {
	Store   Store
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewPersister starts the background writer.
func NewPersister(cfg PersisterConfig) *Persister {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	p := &Persister{
		store:   store,
		timeout: timeout,
		logger:  cfg.Logger,
		pending: make(map[string]job),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Store returns the underlying store.
func (p *Persister) Store() Store { return p.store }

// Enqueue schedules st to be saved under key. It reports false once the persister is closed.
func (p *Persister) Enqueue(key string, st Stacks) bool {
	return p.push(job{key: key, stacks: st})
}

// EnqueueDelete schedules removal of key.
func (p *Persister) EnqueueDelete(key string) bool {
	return p.push(job{key: key, delete: true})
}

// Pending returns the number of sessions with queued work.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

func (p *Persister) push(j job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if _, queued := p.pending[j.key]; queued {
		if obs.HistoryWritesSuperseded != nil {
			obs.HistoryWritesSuperseded.Inc()
		}
		p.logger.Debug().Str("session_key", j.key).Msg("history_write_superseded")
	} else {
		p.order = append(p.order, j.key)
	}
	p.pending[j.key] = j
	p.mu.Unlock()
	p.signal()
	return true
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting work and waits for queued writes to finish.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.signal()
	<-p.done
}

func (p *Persister) run() {
	defer close(p.done)
	for {
		j, ok, closed := p.next()
		if ok {
			p.write(j)
			continue
		}
		if closed {
			return
		}
		<-p.wake
	}
}

// next pops the oldest pending key. closed is only reported once the queue is drained.
func (p *Persister) next() (j job, ok, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		return job{}, false, p.closed
	}
	key := p.order[0]
	p.order = p.order[1:]
	j = p.pending[key]
	delete(p.pending, key)
	return j, true, false
}

func (p *Persister) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	var err error
	op := "save"
	if j.delete {
		op = "delete"
		err = p.store.Delete(ctx, j.key)
	} else {
		err = p.store.Save(ctx, j.key, j.stacks)
	}
	if err != nil {
		obs.CountHistoryPersist(p.store.Name(), "error")
		p.logger.Warn().Err(err).Str("session_key", j.key).Str("op", op).Str("store", p.store.Name()).Msg("history_persist_failed")
		return
	}
	obs.CountHistoryPersist(p.store.Name(), "success")
}
