package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/internal/policy"
	"github.com/nimasrn/hlr-gateway/internal/scheduler"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
)

// Classifier resolves a destination address to a classification.
type Classifier interface {
	Classify(addr string) *model.ClassificationResult
}

// Deliveries is the scheduler surface a session needs: queueing new
// receipts and settling everything it owns on teardown.
type Deliveries interface {
	Schedule(pd *model.PendingDelivery)
	Cancel(sessionID string) int
}

type Options struct {
	ListenAddr      string
	SystemID        string
	Password        string
	BindAttempts    int
	MaxDecodeErrors int
	DLRDelay        time.Duration
	DLRRespTimeout  time.Duration
}

// Server accepts SMPP connections and runs one Session per connection.
// It also implements scheduler.Sessions so fired receipts find their
// way back to the owning socket.
type Server struct {
	opts       Options
	classifier Classifier
	policy     *policy.Policy
	deliveries Deliveries

	ln       net.Listener
	sessions sync.Map // session id -> *Session
	nextID   atomic.Uint64
	wg       sync.WaitGroup
	quit     chan struct{}
}

func New(opts Options, classifier Classifier, pol *policy.Policy, deliveries Deliveries) *Server {
	if opts.BindAttempts < 1 {
		opts.BindAttempts = 1
	}
	if opts.MaxDecodeErrors < 1 {
		opts.MaxDecodeErrors = 3
	}
	if opts.DLRRespTimeout <= 0 {
		opts.DLRRespTimeout = 5 * time.Second
	}
	return &Server{
		opts:       opts,
		classifier: classifier,
		policy:     pol,
		deliveries: deliveries,
		quit:       make(chan struct{}),
	}
}

// SetDeliveries wires in the scheduler after construction. The server
// and the scheduler reference each other, one of the two has to be
// attached late. Must be called before Start.
func (s *Server) SetDeliveries(d Deliveries) {
	s.deliveries = d
}

// Start binds the listen socket and launches the accept loop.
// Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "smpp listen")
	}
	s.ln = ln
	logger.Info("[smpp] listening", "addr", ln.Addr().String(), "policy", s.policy.Name())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, useful when configured with
// port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			logger.Warn("[smpp] accept failed", "error", err)
			continue
		}

		sess := newSession(s.sessionID(conn), conn, s)
		s.sessions.Store(sess.id, sess)
		prom.IncGauge(prom.SystemSMPP, prom.MetricActiveSessions)
		logger.Info("[smpp] session accepted", "session_id", sess.id)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.serve()
		}()
	}
}

func (s *Server) sessionID(conn net.Conn) string {
	return conn.RemoteAddr().String() + "#" + strconv.FormatUint(s.nextID.Add(1), 10)
}

// Deliver routes a fired receipt to its owning session. Satisfies
// scheduler.Sessions.
func (s *Server) Deliver(sessionID string, pd *model.PendingDelivery) error {
	v, ok := s.sessions.Load(sessionID)
	if !ok {
		return scheduler.ErrSessionGone
	}
	return v.(*Session).Deliver(pd)
}

// ActiveSessions reports how many sessions are currently connected.
func (s *Server) ActiveSessions() int {
	n := 0
	s.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// removeSession drops the registry entry after the session has settled
// its pending deliveries.
func (s *Server) removeSession(sess *Session) {
	if _, loaded := s.sessions.LoadAndDelete(sess.id); loaded {
		prom.DecGauge(prom.SystemSMPP, prom.MetricActiveSessions)
	}
}

// Shutdown closes the listener and every live session, then waits for
// session goroutines to finish or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.quit)
	if s.ln != nil {
		_ = s.ln.Close()
	}

	s.sessions.Range(func(_, v interface{}) bool {
		v.(*Session).close("server shutdown")
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
