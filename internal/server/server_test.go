package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/hlr-gateway/internal/config"
	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/internal/policy"
	"github.com/nimasrn/hlr-gateway/internal/scheduler"
	"github.com/nimasrn/hlr-gateway/internal/smpp"
)

const (
	testSystemID = "smppclient1"
	testPassword = "password"
)

type stubClassifier struct {
	results map[string]*model.ClassificationResult
}

func (s *stubClassifier) Classify(addr string) *model.ClassificationResult {
	msisdn := smpp.NormalizeMSISDN(addr)
	if r, ok := s.results[msisdn]; ok {
		return r
	}
	return &model.ClassificationResult{
		MSISDN:         msisdn,
		Classification: model.ClassificationInvalid,
		DLRErrorCode:   "000",
		Source:         model.SourceLive,
	}
}

type captureDeliveries struct {
	mu        sync.Mutex
	scheduled []*model.PendingDelivery
	cancelled []string
}

func (c *captureDeliveries) Schedule(pd *model.PendingDelivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled = append(c.scheduled, pd)
}

func (c *captureDeliveries) Cancel(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, sessionID)
	return 0
}

func (c *captureDeliveries) scheduledCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scheduled)
}

func validResult(msisdn string) *model.ClassificationResult {
	return &model.ClassificationResult{
		MSISDN:         msisdn,
		Classification: model.ClassificationValid,
		Present:        "yes",
		DLRErrorCode:   "000",
		Source:         model.SourceLive,
	}
}

func startServer(t *testing.T, variant string, classifier Classifier, deliveries Deliveries) *Server {
	t.Helper()
	pol, err := policy.ForVariant(variant, "valid")
	require.NoError(t, err)

	srv := New(Options{
		ListenAddr:      "127.0.0.1:0",
		SystemID:        testSystemID,
		Password:        testPassword,
		BindAttempts:    2,
		MaxDecodeErrors: 3,
		DLRDelay:        10 * time.Millisecond,
		DLRRespTimeout:  time.Second,
	}, classifier, pol, deliveries)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	seq  uint32
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) nextSeq() uint32 {
	c.seq++
	return c.seq
}

func (c *testClient) send(p *smpp.PDU) {
	c.t.Helper()
	_, err := c.conn.Write(smpp.Encode(p))
	require.NoError(c.t, err)
}

func (c *testClient) sendRaw(raw []byte) {
	c.t.Helper()
	_, err := c.conn.Write(raw)
	require.NoError(c.t, err)
}

func (c *testClient) read() *smpp.PDU {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	pdu, err := smpp.ReadPDU(c.conn)
	require.NoError(c.t, err)
	return pdu
}

// readCommand skips interleaved PDUs until one with the wanted command
// id arrives.
func (c *testClient) readCommand(id uint32) *smpp.PDU {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		pdu := c.read()
		if pdu.Header.CommandID == id {
			return pdu
		}
	}
	c.t.Fatalf("no %s received", smpp.CmdName(id))
	return nil
}

func (c *testClient) bind(id uint32, systemID, password string) *smpp.PDU {
	c.t.Helper()
	seq := c.nextSeq()
	c.send(&smpp.PDU{
		Header: smpp.Header{Sequence: seq},
		Body: &smpp.BindRequest{
			ID:               id,
			SystemID:         systemID,
			Password:         password,
			InterfaceVersion: smpp.InterfaceVersion,
		},
	})
	return c.read()
}

func (c *testClient) submit(dest string) uint32 {
	c.t.Helper()
	seq := c.nextSeq()
	c.send(&smpp.PDU{
		Header: smpp.Header{Sequence: seq},
		Body: &smpp.ShortMessage{
			ID:                 smpp.CmdSubmitSM,
			SourceAddr:         "48601123123",
			DestinationAddr:    dest,
			RegisteredDelivery: 1,
			Message:            []byte("test"),
		},
	})
	return seq
}

func TestBindTransceiver(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	assert.Equal(t, smpp.CmdBindTransceiverResp, resp.Header.CommandID)
	assert.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)
	assert.Equal(t, uint32(1), resp.Header.Sequence)

	body, ok := resp.Body.(*smpp.BindResp)
	require.True(t, ok)
	assert.Equal(t, testSystemID, body.SystemID)
}

func TestBindWrongPassword(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransmitter, testSystemID, "nope")
	assert.Equal(t, smpp.StatusInvPaswd, resp.Header.CommandStatus)

	// one retry is allowed before the server hangs up
	resp = c.bind(smpp.CmdBindTransmitter, testSystemID, testPassword)
	assert.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)
}

func TestBindWrongSystemID(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, "intruder", testPassword)
	assert.Equal(t, smpp.StatusInvSysID, resp.Header.CommandStatus)
}

func TestBindAttemptsExhausted(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, "nope")
	assert.Equal(t, smpp.StatusInvPaswd, resp.Header.CommandStatus)
	resp = c.bind(smpp.CmdBindTransceiver, testSystemID, "still wrong")
	assert.Equal(t, smpp.StatusInvPaswd, resp.Header.CommandStatus)

	// third read hits the closed socket
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := smpp.ReadPDU(c.conn)
	assert.Error(t, err)
}

func TestBindWhileBound(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	resp = c.bind(smpp.CmdBindTransmitter, testSystemID, testPassword)
	assert.Equal(t, smpp.StatusInvBndSts, resp.Header.CommandStatus)
}

func TestSubmitBeforeBind(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	seq := c.submit("13476841841")
	resp := c.read()
	assert.Equal(t, smpp.CmdSubmitSMResp, resp.Header.CommandID)
	assert.Equal(t, smpp.StatusInvBndSts, resp.Header.CommandStatus)
	assert.Equal(t, seq, resp.Header.Sequence)
}

func TestSubmitOnReceiverBind(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindReceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	c.submit("13476841841")
	resp = c.read()
	assert.Equal(t, smpp.StatusInvBndSts, resp.Header.CommandStatus)
}

func TestEnquireLinkAnyState(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	// before bind
	c.sendRaw(smpp.EncodeHeaderOnly(smpp.CmdEnquireLink, 0, 77))
	resp := c.read()
	assert.Equal(t, smpp.CmdEnquireLinkResp, resp.Header.CommandID)
	assert.Equal(t, uint32(77), resp.Header.Sequence)

	// after bind
	bindResp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, bindResp.Header.CommandStatus)
	c.sendRaw(smpp.EncodeHeaderOnly(smpp.CmdEnquireLink, 0, 78))
	resp = c.read()
	assert.Equal(t, smpp.CmdEnquireLinkResp, resp.Header.CommandID)
}

func TestUnknownCommandNacked(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	c.sendRaw(smpp.EncodeHeaderOnly(0x00000077, 0, 9))
	resp := c.read()
	assert.Equal(t, smpp.CmdGenericNack, resp.Header.CommandID)
	assert.Equal(t, smpp.StatusInvCmdID, resp.Header.CommandStatus)
	assert.Equal(t, uint32(9), resp.Header.Sequence)
}

func TestFilterOnlyRejectsValidNumber(t *testing.T) {
	deliveries := &captureDeliveries{}
	classifier := &stubClassifier{results: map[string]*model.ClassificationResult{
		"13476841841": validResult("13476841841"),
	}}
	srv := startServer(t, config.VariantFilterOnly, classifier, deliveries)
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	seq := c.submit("13476841841")
	resp = c.readCommand(smpp.CmdSubmitSMResp)
	assert.Equal(t, smpp.StatusInvDstAdr, resp.Header.CommandStatus)
	assert.Equal(t, seq, resp.Header.Sequence)
	assert.Nil(t, resp.Body)

	// rejects never earn a receipt
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, deliveries.scheduledCount())
}

func TestFilterOnlyAcceptsInvalidNumber(t *testing.T) {
	deliveries := &captureDeliveries{}
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, deliveries)
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	c.submit("40722570240999")
	resp = c.readCommand(smpp.CmdSubmitSMResp)
	assert.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	body, ok := resp.Body.(*smpp.MessageIDResp)
	require.True(t, ok)
	assert.NotEmpty(t, body.MessageID)

	require.Eventually(t, func() bool { return deliveries.scheduledCount() == 1 },
		time.Second, 10*time.Millisecond)

	pd := deliveries.scheduled[0]
	assert.Equal(t, body.MessageID, pd.MessageID)
	assert.Equal(t, model.StatDelivered, pd.Stat)
	assert.Equal(t, model.ModeLogOnly, pd.Mode)
	assert.Equal(t, "000", pd.ErrCode)
}

func TestFullDLRDeliversReceipt(t *testing.T) {
	classifier := &stubClassifier{results: map[string]*model.ClassificationResult{
		"13476841841": validResult("13476841841"),
	}}

	pol, err := policy.ForVariant(config.VariantFullDLR, "valid")
	require.NoError(t, err)

	srv := New(Options{
		ListenAddr:      "127.0.0.1:0",
		SystemID:        testSystemID,
		Password:        testPassword,
		BindAttempts:    2,
		MaxDecodeErrors: 3,
		DLRDelay:        20 * time.Millisecond,
		DLRRespTimeout:  time.Second,
	}, classifier, pol, nil)

	sched := scheduler.New(srv, nil, scheduler.Options{
		Workers:      4,
		TickInterval: 5 * time.Millisecond,
		RetryBackoff: 10 * time.Millisecond,
	})
	srv.SetDeliveries(sched)
	sched.Start()
	t.Cleanup(sched.Stop)

	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	c := dial(t, srv)
	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	c.submit("+13476841841")
	resp = c.readCommand(smpp.CmdSubmitSMResp)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)
	messageID := resp.Body.(*smpp.MessageIDResp).MessageID

	dlr := c.readCommand(smpp.CmdDeliverSM)
	sm := dlr.Body.(*smpp.ShortMessage)
	assert.Equal(t, smpp.EsmClassDeliveryReceipt, sm.EsmClass)
	assert.Equal(t, "+13476841841", sm.SourceAddr)
	assert.Equal(t, "48601123123", sm.DestinationAddr)

	text := string(sm.Message)
	assert.True(t, strings.HasPrefix(text, "id:"+messageID+" sub:001 dlvrd:000 "), text)
	assert.Contains(t, text, "stat:DELIVRD err:000 text:")

	// ack it so the scheduler settles the receipt cleanly
	c.send(&smpp.PDU{
		Header: smpp.Header{CommandStatus: smpp.StatusOK, Sequence: dlr.Header.Sequence},
		Body:   &smpp.MessageIDResp{ID: smpp.CmdDeliverSMResp},
	})

	require.Eventually(t, func() bool { return sched.Pending() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestUnbindSettlesSession(t *testing.T) {
	deliveries := &captureDeliveries{}
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, deliveries)
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	c.sendRaw(smpp.EncodeHeaderOnly(smpp.CmdUnbind, 0, 5))
	resp = c.read()
	assert.Equal(t, smpp.CmdUnbindResp, resp.Header.CommandID)
	assert.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	require.Eventually(t, func() bool {
		deliveries.mu.Lock()
		defer deliveries.mu.Unlock()
		return len(deliveries.cancelled) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.ActiveSessions())
}

func TestAbruptDisconnectSettlesSession(t *testing.T) {
	deliveries := &captureDeliveries{}
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, deliveries)
	c := dial(t, srv)

	resp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	require.Equal(t, smpp.StatusOK, resp.Header.CommandStatus)

	require.NoError(t, c.conn.Close())

	require.Eventually(t, func() bool {
		deliveries.mu.Lock()
		defer deliveries.mu.Unlock()
		return len(deliveries.cancelled) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.ActiveSessions())
}

func TestMalformedFrameNacked(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	// bind body with trailing garbage under a matching length
	body := (&smpp.BindRequest{ID: smpp.CmdBindTransceiver, SystemID: "x"}).Marshal()
	body = append(body, 0xff, 0xff)
	raw := smpp.EncodeHeaderOnly(smpp.CmdBindTransceiver, 0, 4)
	raw = append(raw[:16:16], body...)
	raw[3] = byte(len(raw))
	c.sendRaw(raw)

	resp := c.read()
	assert.Equal(t, smpp.CmdGenericNack, resp.Header.CommandID)
	assert.Equal(t, smpp.StatusInvCmdLen, resp.Header.CommandStatus)
	assert.Equal(t, uint32(4), resp.Header.Sequence)

	// the stream is still framed, the session keeps working
	bindResp := c.bind(smpp.CmdBindTransceiver, testSystemID, testPassword)
	assert.Equal(t, smpp.StatusOK, bindResp.Header.CommandStatus)
}

func TestGarbageLengthClosesConnection(t *testing.T) {
	srv := startServer(t, config.VariantFilterOnly, &stubClassifier{}, &captureDeliveries{})
	c := dial(t, srv)

	raw := smpp.EncodeHeaderOnly(smpp.CmdEnquireLink, 0, 1)
	raw[0], raw[1], raw[2], raw[3] = 0xff, 0xff, 0xff, 0xff
	c.sendRaw(raw)

	resp := c.read()
	assert.Equal(t, smpp.CmdGenericNack, resp.Header.CommandID)
	assert.Equal(t, smpp.StatusInvCmdLen, resp.Header.CommandStatus)

	_, err := smpp.ReadPDU(c.conn)
	assert.Error(t, err)
}
