package smpp

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrShortBody      = errors.New("smpp: body truncated")
	ErrMissingNull    = errors.New("smpp: unterminated c-octet string")
	ErrTrailingBytes  = errors.New("smpp: declared length exceeds body")
	ErrUnknownCommand = errors.New("smpp: unknown command id")
)

// Header is the fixed 16-byte prefix every PDU starts with. All fields
// are big-endian on the wire. CommandLength covers the header itself.
type Header struct {
	CommandLength uint32
	CommandID     uint32
	CommandStatus uint32
	Sequence      uint32
}

// Body is the decoded payload of a PDU.
type Body interface {
	CommandID() uint32
	Marshal() []byte
	Unmarshal(data []byte) error
}

// PDU pairs a header with its decoded body. Body is nil for PDUs that
// carry none (enquire_link, unbind, generic_nack and their resps).
type PDU struct {
	Header Header
	Body   Body
}

func writeHeader(buf *bytes.Buffer, h Header) {
	var b [headerLength]byte
	binary.BigEndian.PutUint32(b[0:4], h.CommandLength)
	binary.BigEndian.PutUint32(b[4:8], h.CommandID)
	binary.BigEndian.PutUint32(b[8:12], h.CommandStatus)
	binary.BigEndian.PutUint32(b[12:16], h.Sequence)
	buf.Write(b[:])
}

func parseHeader(data []byte) Header {
	return Header{
		CommandLength: binary.BigEndian.Uint32(data[0:4]),
		CommandID:     binary.BigEndian.Uint32(data[4:8]),
		CommandStatus: binary.BigEndian.Uint32(data[8:12]),
		Sequence:      binary.BigEndian.Uint32(data[12:16]),
	}
}

// reader walks a PDU body, tracking a sticky error so call sites can
// chain reads and check once at the end.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.data[r.pos:], 0)
	if i < 0 {
		r.err = ErrMissingNull
		return ""
	}
	s := string(r.data[r.pos : r.pos+i])
	r.pos += i + 1
	return s
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.data) {
		r.err = ErrShortBody
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

// finish fails if the declared length left bytes the body grammar did
// not consume.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.data) {
		return ErrTrailingBytes
	}
	return nil
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = ErrShortBody
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// BindRequest is the shared body of bind_transmitter, bind_receiver and
// bind_transceiver; the three differ only in command ID.
type BindRequest struct {
	ID               uint32
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion byte
	AddrTON          byte
	AddrNPI          byte
	AddressRange     string
}

func (b *BindRequest) CommandID() uint32 { return b.ID }

func (b *BindRequest) Marshal() []byte {
	var buf bytes.Buffer
	writeCString(&buf, b.SystemID)
	writeCString(&buf, b.Password)
	writeCString(&buf, b.SystemType)
	buf.WriteByte(b.InterfaceVersion)
	buf.WriteByte(b.AddrTON)
	buf.WriteByte(b.AddrNPI)
	writeCString(&buf, b.AddressRange)
	return buf.Bytes()
}

func (b *BindRequest) Unmarshal(data []byte) error {
	r := reader{data: data}
	b.SystemID = r.cstring()
	b.Password = r.cstring()
	b.SystemType = r.cstring()
	b.InterfaceVersion = r.byte()
	b.AddrTON = r.byte()
	b.AddrNPI = r.byte()
	b.AddressRange = r.cstring()
	return r.finish()
}

// BindResp is the body of the three bind responses.
type BindResp struct {
	ID       uint32
	SystemID string
}

func (b *BindResp) CommandID() uint32 { return b.ID }

func (b *BindResp) Marshal() []byte {
	var buf bytes.Buffer
	writeCString(&buf, b.SystemID)
	return buf.Bytes()
}

func (b *BindResp) Unmarshal(data []byte) error {
	r := reader{data: data}
	b.SystemID = r.cstring()
	return r.finish()
}

// ShortMessage is the body shared by submit_sm and deliver_sm, which
// have identical mandatory fields.
type ShortMessage struct {
	ID                   uint32
	ServiceType          string
	SourceAddrTON        byte
	SourceAddrNPI        byte
	SourceAddr           string
	DestAddrTON          byte
	DestAddrNPI          byte
	DestinationAddr      string
	EsmClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresent     byte
	DataCoding           byte
	SMDefaultMsgID       byte
	Message              []byte
}

func (s *ShortMessage) CommandID() uint32 { return s.ID }

func (s *ShortMessage) Marshal() []byte {
	var buf bytes.Buffer
	writeCString(&buf, s.ServiceType)
	buf.WriteByte(s.SourceAddrTON)
	buf.WriteByte(s.SourceAddrNPI)
	writeCString(&buf, s.SourceAddr)
	buf.WriteByte(s.DestAddrTON)
	buf.WriteByte(s.DestAddrNPI)
	writeCString(&buf, s.DestinationAddr)
	buf.WriteByte(s.EsmClass)
	buf.WriteByte(s.ProtocolID)
	buf.WriteByte(s.PriorityFlag)
	writeCString(&buf, s.ScheduleDeliveryTime)
	writeCString(&buf, s.ValidityPeriod)
	buf.WriteByte(s.RegisteredDelivery)
	buf.WriteByte(s.ReplaceIfPresent)
	buf.WriteByte(s.DataCoding)
	buf.WriteByte(s.SMDefaultMsgID)
	buf.WriteByte(byte(len(s.Message)))
	buf.Write(s.Message)
	return buf.Bytes()
}

func (s *ShortMessage) Unmarshal(data []byte) error {
	r := reader{data: data}
	s.ServiceType = r.cstring()
	s.SourceAddrTON = r.byte()
	s.SourceAddrNPI = r.byte()
	s.SourceAddr = r.cstring()
	s.DestAddrTON = r.byte()
	s.DestAddrNPI = r.byte()
	s.DestinationAddr = r.cstring()
	s.EsmClass = r.byte()
	s.ProtocolID = r.byte()
	s.PriorityFlag = r.byte()
	s.ScheduleDeliveryTime = r.cstring()
	s.ValidityPeriod = r.cstring()
	s.RegisteredDelivery = r.byte()
	s.ReplaceIfPresent = r.byte()
	s.DataCoding = r.byte()
	s.SMDefaultMsgID = r.byte()
	smLen := int(r.byte())
	msg := r.bytes(smLen)
	if err := r.finish(); err != nil {
		return err
	}
	s.Message = append([]byte(nil), msg...)
	return nil
}

// MessageIDResp is the body of submit_sm_resp and deliver_sm_resp, a
// single message_id c-octet string.
type MessageIDResp struct {
	ID        uint32
	MessageID string
}

func (m *MessageIDResp) CommandID() uint32 { return m.ID }

func (m *MessageIDResp) Marshal() []byte {
	var buf bytes.Buffer
	writeCString(&buf, m.MessageID)
	return buf.Bytes()
}

func (m *MessageIDResp) Unmarshal(data []byte) error {
	r := reader{data: data}
	m.MessageID = r.cstring()
	return r.finish()
}

func bodyForCommand(id uint32) (Body, bool) {
	switch id {
	case CmdBindTransmitter, CmdBindReceiver, CmdBindTransceiver:
		return &BindRequest{ID: id}, true
	case CmdBindTransmitterResp, CmdBindReceiverResp, CmdBindTransceiverResp:
		return &BindResp{ID: id}, true
	case CmdSubmitSM, CmdDeliverSM:
		return &ShortMessage{ID: id}, true
	case CmdSubmitSMResp, CmdDeliverSMResp:
		return &MessageIDResp{ID: id}, true
	case CmdEnquireLink, CmdEnquireLinkResp, CmdUnbind, CmdUnbindResp, CmdGenericNack:
		return nil, true
	default:
		return nil, false
	}
}
