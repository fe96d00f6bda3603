package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/internal/scheduler"
	"github.com/nimasrn/hlr-gateway/internal/smpp"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
)

type sessionState int32

const (
	stateOpen sessionState = iota
	stateBoundTX
	stateBoundRX
	stateBoundTRX
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateOpen:
		return "OPEN"
	case stateBoundTX:
		return "BOUND_TX"
	case stateBoundRX:
		return "BOUND_RX"
	case stateBoundTRX:
		return "BOUND_TRX"
	case stateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

const writeTimeout = 10 * time.Second

// Session owns one client connection and its bind state machine. The
// read loop is single-goroutine; submit handling forks off so a slow
// HLR lookup never stalls enquire_link on the same socket. All writes
// go through writePDU, serialized by writeMu.
type Session struct {
	id   string
	conn net.Conn
	srv  *Server

	state atomic.Int32

	writeMu sync.Mutex

	// server-originated sequence numbers (deliver_sm)
	seq atomic.Uint32

	// in-flight deliver_sm waits, keyed by our sequence number
	awaitMu  sync.Mutex
	awaiting map[uint32]chan uint32

	bindFails  int
	decodeErrs int

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn net.Conn, srv *Server) *Session {
	s := &Session{
		id:       id,
		conn:     conn,
		srv:      srv,
		awaiting: make(map[uint32]chan uint32),
		closed:   make(chan struct{}),
	}
	s.state.Store(int32(stateOpen))
	return s
}

func (s *Session) currentState() sessionState {
	return sessionState(s.state.Load())
}

func (s *Session) bound() bool {
	st := s.currentState()
	return st == stateBoundTX || st == stateBoundRX || st == stateBoundTRX
}

func (s *Session) canSubmit() bool {
	st := s.currentState()
	return st == stateBoundTX || st == stateBoundTRX
}


func (s *Session) serve() {
	defer s.close("read loop exit")

	for {
		pdu, err := smpp.ReadPDU(s.conn)
		if err != nil {
			var derr *smpp.DecodeError
			if errors.As(err, &derr) {
				s.handleDecodeError(derr)
				if errors.Is(err, smpp.ErrLengthOutOfRange) {
					// stream is desynchronized, nothing more to parse
					return
				}
				if s.decodeErrs >= s.srv.opts.MaxDecodeErrors {
					logger.Warn("[smpp] too many malformed frames", "session_id", s.id)
					return
				}
				continue
			}
			if s.currentState() != stateClosed {
				logger.Info("[smpp] connection closed", "session_id", s.id, "reason", err.Error())
			}
			return
		}

		if !s.handle(pdu) {
			return
		}
	}
}

// handle processes one inbound PDU. Returns false when the session
// should terminate.
func (s *Session) handle(pdu *smpp.PDU) bool {
	switch pdu.Header.CommandID {
	case smpp.CmdEnquireLink:
		// answered in any state, no state change
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdEnquireLinkResp, smpp.StatusOK, pdu.Header.Sequence))
		return true

	case smpp.CmdEnquireLinkResp, smpp.CmdGenericNack:
		return true

	case smpp.CmdDeliverSMResp:
		s.resolveDeliverResp(pdu.Header.Sequence, pdu.Header.CommandStatus)
		return true

	case smpp.CmdUnbind:
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdUnbindResp, smpp.StatusOK, pdu.Header.Sequence))
		s.close("unbind")
		return false

	case smpp.CmdBindTransmitter, smpp.CmdBindReceiver, smpp.CmdBindTransceiver:
		return s.handleBind(pdu)

	case smpp.CmdSubmitSM:
		return s.handleSubmit(pdu)

	default:
		// recognized but unexpected from a client
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdGenericNack, smpp.StatusInvCmdID, pdu.Header.Sequence))
		return true
	}
}

func (s *Session) handleDecodeError(derr *smpp.DecodeError) {
	s.decodeErrs++
	logger.Warn("[smpp] malformed frame",
		"session_id", s.id,
		"command", smpp.CmdName(derr.Header.CommandID),
		"error", derr.Err.Error(),
	)
	s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdGenericNack, derr.Status, derr.Header.Sequence))
}

func (s *Session) handleBind(pdu *smpp.PDU) bool {
	respID := smpp.RespID(pdu.Header.CommandID)

	if s.bound() {
		s.writeRaw(smpp.EncodeHeaderOnly(respID, smpp.StatusInvBndSts, pdu.Header.Sequence))
		return true
	}
	if s.currentState() != stateOpen {
		return false
	}

	req, ok := pdu.Body.(*smpp.BindRequest)
	if !ok {
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdGenericNack, smpp.StatusInvCmdLen, pdu.Header.Sequence))
		return true
	}

	if status := s.checkCredentials(req); status != smpp.StatusOK {
		s.bindFails++
		logger.Warn("[smpp] bind rejected",
			"session_id", s.id,
			"system_id", req.SystemID,
			"attempt", s.bindFails,
		)
		s.writeRaw(smpp.EncodeHeaderOnly(respID, status, pdu.Header.Sequence))
		if s.bindFails >= s.srv.opts.BindAttempts {
			s.close("bind attempts exhausted")
			return false
		}
		return true
	}

	switch pdu.Header.CommandID {
	case smpp.CmdBindTransmitter:
		s.state.Store(int32(stateBoundTX))
	case smpp.CmdBindReceiver:
		s.state.Store(int32(stateBoundRX))
	case smpp.CmdBindTransceiver:
		s.state.Store(int32(stateBoundTRX))
	}

	logger.Info("[smpp] session bound",
		"session_id", s.id,
		"system_id", req.SystemID,
		"state", s.currentState().String(),
	)
	s.writePDU(&smpp.PDU{
		Header: smpp.Header{CommandStatus: smpp.StatusOK, Sequence: pdu.Header.Sequence},
		Body:   &smpp.BindResp{ID: respID, SystemID: s.srv.opts.SystemID},
	})
	return true
}

func (s *Session) checkCredentials(req *smpp.BindRequest) uint32 {
	if req.SystemID != s.srv.opts.SystemID {
		return smpp.StatusInvSysID
	}
	if req.Password != s.srv.opts.Password {
		return smpp.StatusInvPaswd
	}
	return smpp.StatusOK
}

func (s *Session) handleSubmit(pdu *smpp.PDU) bool {
	if !s.canSubmit() {
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdSubmitSMResp, smpp.StatusInvBndSts, pdu.Header.Sequence))
		return true
	}

	sm, ok := pdu.Body.(*smpp.ShortMessage)
	if !ok {
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdGenericNack, smpp.StatusInvCmdLen, pdu.Header.Sequence))
		return true
	}

	// the lookup may block on the external service, keep the read loop
	// free for enquire_link and further submits
	go s.processSubmit(pdu.Header.Sequence, sm)
	return true
}

func (s *Session) processSubmit(seq uint32, sm *smpp.ShortMessage) {
	start := time.Now()

	result := s.srv.classifier.Classify(sm.DestinationAddr)
	disposition := s.srv.policy.Decide(result)

	prom.AddHistogram(prom.SystemSMPP, prom.MetricSubmitSeconds, time.Since(start).Seconds())
	prom.IncCounterVec(prom.SystemSMPP, prom.MetricSubmitTotal, submitStatusLabel(disposition.Status))

	if s.currentState() == stateClosed {
		return
	}

	if disposition.Status != smpp.StatusOK {
		logger.Info("[smpp] submit rejected",
			"session_id", s.id,
			"dest", result.MSISDN,
			"classification", string(result.Classification),
			"status", disposition.Status,
			"source", result.Source,
		)
		s.writeRaw(smpp.EncodeHeaderOnly(smpp.CmdSubmitSMResp, disposition.Status, seq))
		return
	}

	messageID := uuid.NewString()
	s.writePDU(&smpp.PDU{
		Header: smpp.Header{CommandStatus: smpp.StatusOK, Sequence: seq},
		Body:   &smpp.MessageIDResp{ID: smpp.CmdSubmitSMResp, MessageID: messageID},
	})

	logger.Info("[smpp] submit accepted",
		"session_id", s.id,
		"message_id", messageID,
		"dest", result.MSISDN,
		"classification", string(result.Classification),
		"source", result.Source,
	)

	if disposition.Deferred == nil {
		return
	}
	now := time.Now()
	s.srv.deliveries.Schedule(&model.PendingDelivery{
		MessageID:  messageID,
		SessionID:  s.id,
		SourceAddr: sm.SourceAddr,
		DestAddr:   sm.DestinationAddr,
		Stat:       disposition.Deferred.Stat,
		ErrCode:    disposition.Deferred.ErrCode,
		Mode:       disposition.Deferred.Mode,
		SubmitTime: now,
		DueTime:    now.Add(s.srv.opts.DLRDelay),
	})
}

func submitStatusLabel(status uint32) string {
	if status == smpp.StatusOK {
		return "accepted"
	}
	return "rejected"
}

// Deliver sends a deliver_sm receipt and waits for the client's
// deliver_sm_resp. Called from scheduler workers, never from the
// session's own goroutines.
func (s *Session) Deliver(pd *model.PendingDelivery) error {
	if !s.bound() {
		return scheduler.ErrSessionGone
	}

	seq := s.seq.Add(1)
	respCh := make(chan uint32, 1)

	s.awaitMu.Lock()
	s.awaiting[seq] = respCh
	s.awaitMu.Unlock()
	defer func() {
		s.awaitMu.Lock()
		delete(s.awaiting, seq)
		s.awaitMu.Unlock()
	}()

	// done date is the moment the receipt actually fires
	text := smpp.DLRText(pd.MessageID, pd.Stat, pd.ErrCode, pd.SubmitTime, time.Now())
	err := s.writePDU(&smpp.PDU{
		Header: smpp.Header{Sequence: seq},
		Body: &smpp.ShortMessage{
			ID:              smpp.CmdDeliverSM,
			SourceAddr:      pd.DestAddr,
			DestinationAddr: pd.SourceAddr,
			EsmClass:        smpp.EsmClassDeliveryReceipt,
			Message:         []byte(text),
		},
	})
	if err != nil {
		return err
	}

	select {
	case status := <-respCh:
		if status != smpp.StatusOK {
			return errors.Errorf("deliver_sm_resp status %#x", status)
		}
		return nil
	case <-s.closed:
		return scheduler.ErrSessionGone
	case <-time.After(s.srv.opts.DLRRespTimeout):
		return errors.New("deliver_sm_resp timed out")
	}
}

func (s *Session) resolveDeliverResp(seq, status uint32) {
	s.awaitMu.Lock()
	ch, ok := s.awaiting[seq]
	s.awaitMu.Unlock()
	if !ok {
		logger.Debug("[smpp] unmatched deliver_sm_resp", "session_id", s.id, "sequence", seq)
		return
	}
	select {
	case ch <- status:
	default:
	}
}

func (s *Session) writePDU(p *smpp.PDU) error {
	return s.writeRaw(smpp.Encode(p))
}

func (s *Session) writeRaw(raw []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := s.conn.Write(raw); err != nil {
		return errors.Wrap(err, "session write")
	}
	return nil
}

// close transitions to CLOSED exactly once: the socket is shut, pending
// deliveries are settled synchronously, in-flight deliver waits are
// released, and the registry entry is removed.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(stateClosed))
		close(s.closed)
		_ = s.conn.Close()

		settled := s.srv.deliveries.Cancel(s.id)
		s.srv.removeSession(s)

		logger.Info("[smpp] session closed",
			"session_id", s.id,
			"reason", reason,
			"settled_receipts", settled,
		)
	})
}
