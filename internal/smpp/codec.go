package smpp

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// DecodeError reports a PDU that could not be decoded, carrying the
// header so the caller can generic_nack with the right sequence and
// status.
type DecodeError struct {
	Header Header
	Status uint32
	Err    error
}

func (e *DecodeError) Error() string {
	return "smpp: decode " + CmdName(e.Header.CommandID) + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrLengthOutOfRange means the declared command_length cannot be
// trusted, so the stream is desynchronized and the connection must be
// dropped after the nack.
var ErrLengthOutOfRange = errors.New("smpp: command_length out of range")

// ReadPDU reads exactly one PDU off the stream. io.EOF is returned
// untouched on a clean close between PDUs; any other failure is either
// a transport error or a *DecodeError.
func ReadPDU(r io.Reader) (*PDU, error) {
	var hdr [headerLength]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "smpp: read header")
	}

	h := parseHeader(hdr[:])
	if h.CommandLength < headerLength || h.CommandLength > MaxPDULength {
		return nil, &DecodeError{Header: h, Status: StatusInvCmdLen, Err: ErrLengthOutOfRange}
	}

	body := make([]byte, h.CommandLength-headerLength)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "smpp: read body")
	}

	return decode(h, body)
}

// Decode parses a full PDU from a byte slice, header included.
func Decode(data []byte) (*PDU, error) {
	if len(data) < headerLength {
		return nil, errors.Wrap(ErrShortBody, "smpp: decode header")
	}
	h := parseHeader(data)
	if h.CommandLength < headerLength || h.CommandLength > MaxPDULength ||
		int(h.CommandLength) != len(data) {
		return nil, &DecodeError{Header: h, Status: StatusInvCmdLen, Err: ErrLengthOutOfRange}
	}
	return decode(h, data[headerLength:])
}

func decode(h Header, body []byte) (*PDU, error) {
	b, known := bodyForCommand(h.CommandID)
	if !known {
		return nil, &DecodeError{Header: h, Status: StatusInvCmdID, Err: ErrUnknownCommand}
	}
	if b == nil {
		return &PDU{Header: h}, nil
	}
	// error responses are allowed to drop the body entirely
	if len(body) == 0 && IsResp(h.CommandID) && h.CommandStatus != StatusOK {
		return &PDU{Header: h}, nil
	}
	if err := b.Unmarshal(body); err != nil {
		return nil, &DecodeError{Header: h, Status: StatusInvCmdLen, Err: err}
	}
	return &PDU{Header: h, Body: b}, nil
}

// Encode serializes a PDU, computing command_length from the body. The
// CommandID comes from the body when one is present, so a PDU built
// with a body never carries a mismatched header ID.
func Encode(p *PDU) []byte {
	var body []byte
	h := p.Header
	if p.Body != nil {
		body = p.Body.Marshal()
		h.CommandID = p.Body.CommandID()
	}
	h.CommandLength = uint32(headerLength + len(body))

	var buf bytes.Buffer
	buf.Grow(int(h.CommandLength))
	writeHeader(&buf, h)
	buf.Write(body)
	return buf.Bytes()
}

// EncodeHeaderOnly builds a body-less PDU, used for enquire_link,
// unbind, generic_nack and error responses.
func EncodeHeaderOnly(id, status, seq uint32) []byte {
	var b [headerLength]byte
	binary.BigEndian.PutUint32(b[0:4], headerLength)
	binary.BigEndian.PutUint32(b[4:8], id)
	binary.BigEndian.PutUint32(b[8:12], status)
	binary.BigEndian.PutUint32(b[12:16], seq)
	return b[:]
}
