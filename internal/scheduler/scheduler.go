package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
	"github.com/nimasrn/hlr-gateway/pkg/worker"
)

// ErrSessionGone is returned by Sessions.Deliver when the owning
// session has disconnected. The scheduler settles the receipt as lost
// instead of retrying.
var ErrSessionGone = errors.New("scheduler: session gone")

// Sessions delivers a fired receipt to the session that owns it.
// Deliver blocks until the client acknowledges the deliver_sm or the
// send fails, and must be safe for concurrent calls on different
// sessions.
type Sessions interface {
	Deliver(sessionID string, pd *model.PendingDelivery) error
}

// ReceiptAuditor records settled receipts. Outcomes: "delivered",
// "logged", "lost", "cancelled".
type ReceiptAuditor interface {
	RecordReceipt(pd *model.PendingDelivery, outcome string)
}

type Options struct {
	Workers      int
	TickInterval time.Duration
	RetryBackoff time.Duration
}

var DefaultOptions = Options{
	Workers:      16,
	TickInterval: 100 * time.Millisecond,
	RetryBackoff: 500 * time.Millisecond,
}

// Scheduler holds pending delivery receipts in a due-time min-heap and
// fires them through a worker pool, so one slow client socket never
// delays another session's receipts. State is in-memory only: receipts
// do not survive a process restart or a client reconnect.
type Scheduler struct {
	sessions Sessions
	auditor  ReceiptAuditor
	opts     Options

	mu      sync.Mutex
	pending dueHeap

	workers *worker.WorkerManager
	ticker  *time.Ticker
	quit    chan struct{}
	done    sync.WaitGroup
}

func New(sessions Sessions, auditor ReceiptAuditor, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions.Workers
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultOptions.TickInterval
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions.RetryBackoff
	}

	s := &Scheduler{
		sessions: sessions,
		auditor:  auditor,
		opts:     opts,
		quit:     make(chan struct{}),
	}
	s.workers = worker.NewWorkerManager(1024, opts.Workers, nil)
	s.workers.SetWorker(func(_ int, job interface{}) {
		s.fire(job.(*model.PendingDelivery))
	})
	return s
}

// Start launches the tick loop and the delivery workers. Non-blocking.
func (s *Scheduler) Start() {
	s.ticker = time.NewTicker(s.opts.TickInterval)

	go func() {
		if err := s.workers.Start(); err != nil {
			logger.Info("[scheduler] workers stopped", "reason", err)
		}
	}()

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		for {
			select {
			case <-s.ticker.C:
				s.dispatchDue(time.Now())
			case <-s.quit:
				return
			}
		}
	}()
}

// Stop halts the tick loop and the workers. Receipts still waiting,
// whether in the heap or already dispatched to the worker channel, are
// settled as lost.
func (s *Scheduler) Stop() {
	close(s.quit)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.done.Wait()
	s.workers.Exit()

	s.mu.Lock()
	remaining := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, pd := range remaining {
		prom.DecGauge(prom.SystemDLR, prom.MetricPendingDeliveries)
		s.settle(pd, "lost")
	}

	// dispatched receipts the workers never picked up
	for {
		select {
		case job := <-s.workers.JobEvents():
			s.settle(job.(*model.PendingDelivery), "lost")
		default:
			return
		}
	}
}

// Schedule queues a receipt for delivery at its due time.
func (s *Scheduler) Schedule(pd *model.PendingDelivery) {
	s.mu.Lock()
	heap.Push(&s.pending, pd)
	s.mu.Unlock()
	prom.IncGauge(prom.SystemDLR, prom.MetricPendingDeliveries)
}

// Cancel removes and settles every pending receipt owned by a session.
// Called synchronously on session teardown so no fired receipt can race
// a dead session. Returns how many receipts were settled.
func (s *Scheduler) Cancel(sessionID string) int {
	s.mu.Lock()
	var kept, dropped dueHeap
	for _, pd := range s.pending {
		if pd.SessionID == sessionID {
			dropped = append(dropped, pd)
		} else {
			kept = append(kept, pd)
		}
	}
	s.pending = kept
	heap.Init(&s.pending)
	s.mu.Unlock()

	for _, pd := range dropped {
		prom.DecGauge(prom.SystemDLR, prom.MetricPendingDeliveries)
		s.settle(pd, "cancelled")
	}
	return len(dropped)
}

// Pending reports the number of receipts waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) dispatchDue(now time.Time) {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.pending[0].DueTime.After(now) {
			s.mu.Unlock()
			return
		}
		pd := heap.Pop(&s.pending).(*model.PendingDelivery)
		s.mu.Unlock()

		prom.DecGauge(prom.SystemDLR, prom.MetricPendingDeliveries)
		s.workers.Enqueue(pd)
	}
}

func (s *Scheduler) fire(pd *model.PendingDelivery) {
	if pd.Mode == model.ModeLogOnly {
		logger.Info("[dlr] receipt",
			"message_id", pd.MessageID,
			"session_id", pd.SessionID,
			"source", pd.SourceAddr,
			"dest", pd.DestAddr,
			"stat", pd.Stat,
			"err", pd.ErrCode,
			"mode", string(pd.Mode),
		)
		prom.IncCounterVec(prom.SystemDLR, prom.MetricFiredTotal, pd.Stat, string(pd.Mode))
		s.settle(pd, "logged")
		return
	}

	err := s.deliver(pd)
	switch {
	case err == nil:
		prom.IncCounterVec(prom.SystemDLR, prom.MetricFiredTotal, pd.Stat, string(pd.Mode))
		s.settle(pd, "delivered")
	case errors.Is(err, ErrSessionGone):
		logger.Warn("[dlr] receipt undeliverable, session closed",
			"message_id", pd.MessageID, "session_id", pd.SessionID)
		prom.IncCounter(prom.SystemDLR, prom.MetricLostTotal)
		s.settle(pd, "lost")
	default:
		logger.Error("[dlr] receipt delivery failed",
			"message_id", pd.MessageID, "session_id", pd.SessionID,
			"attempts", pd.Attempts, "error", err)
		prom.IncCounter(prom.SystemDLR, prom.MetricLostTotal)
		s.settle(pd, "lost")
	}
}

// deliver sends the receipt, retrying once after a short backoff. The
// retry only covers transient send failures, a closed session fails
// immediately.
func (s *Scheduler) deliver(pd *model.PendingDelivery) error {
	pd.Attempts++
	err := s.sessions.Deliver(pd.SessionID, pd)
	if err == nil || errors.Is(err, ErrSessionGone) {
		return err
	}

	time.Sleep(s.opts.RetryBackoff)
	pd.Attempts++
	return s.sessions.Deliver(pd.SessionID, pd)
}

func (s *Scheduler) settle(pd *model.PendingDelivery, outcome string) {
	if s.auditor != nil {
		s.auditor.RecordReceipt(pd, outcome)
	}
}

// dueHeap orders receipts by due time, earliest first.
type dueHeap []*model.PendingDelivery

func (h dueHeap) Len() int            { return len(h) }
func (h dueHeap) Less(i, j int) bool  { return h[i].DueTime.Before(h[j].DueTime) }
func (h dueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dueHeap) Push(x interface{}) { *h = append(*h, x.(*model.PendingDelivery)) }
func (h *dueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
