package smpp

// Command IDs for the PDU subset the gateway speaks. Responses carry the
// request ID with the high bit set.
const (
	CmdBindReceiver    uint32 = 0x00000001
	CmdBindTransmitter uint32 = 0x00000002
	CmdSubmitSM        uint32 = 0x00000004
	CmdDeliverSM       uint32 = 0x00000005
	CmdUnbind          uint32 = 0x00000006
	CmdBindTransceiver uint32 = 0x00000009
	CmdEnquireLink     uint32 = 0x00000015

	CmdGenericNack uint32 = 0x80000000

	CmdBindReceiverResp    = CmdBindReceiver | respMask
	CmdBindTransmitterResp = CmdBindTransmitter | respMask
	CmdSubmitSMResp        = CmdSubmitSM | respMask
	CmdDeliverSMResp       = CmdDeliverSM | respMask
	CmdUnbindResp          = CmdUnbind | respMask
	CmdBindTransceiverResp = CmdBindTransceiver | respMask
	CmdEnquireLinkResp     = CmdEnquireLink | respMask
)

const respMask uint32 = 0x80000000

// Command status codes.
const (
	StatusOK         uint32 = 0x00000000 // ESME_ROK
	StatusInvCmdLen  uint32 = 0x00000002 // ESME_RINVCMDLEN
	StatusInvCmdID   uint32 = 0x00000003 // ESME_RINVCMDID
	StatusInvBndSts  uint32 = 0x00000004 // ESME_RINVBNDSTS
	StatusSysErr     uint32 = 0x00000008 // ESME_RSYSERR
	StatusInvDstAdr  uint32 = 0x0000000B // ESME_RINVDSTADR
	StatusInvPaswd   uint32 = 0x0000000E // ESME_RINVPASWD
	StatusInvSysID   uint32 = 0x0000000F // ESME_RINVSYSID
	StatusBindFail   uint32 = 0x0000000D // ESME_RBINDFAIL
	StatusThrottled  uint32 = 0x00000058 // ESME_RTHROTTLED
	StatusMsgQFull   uint32 = 0x00000014 // ESME_RMSGQFUL
	StatusUnknownErr uint32 = 0x000000FF // ESME_RUNKNOWNERR
)

// Interface version advertised in binds, SMPP v3.4.
const InterfaceVersion byte = 0x34

// esm_class bit marking a deliver_sm as a delivery receipt.
const EsmClassDeliveryReceipt byte = 0x04

const (
	headerLength = 16
	// MaxPDULength bounds command_length to keep a garbage length field
	// from making the reader allocate gigabytes.
	MaxPDULength = 64 * 1024
)

// RespID returns the response command ID for a request ID.
func RespID(id uint32) uint32 { return id | respMask }

// IsResp reports whether a command ID names a response PDU.
func IsResp(id uint32) bool { return id&respMask != 0 && id != CmdGenericNack }

var cmdNames = map[uint32]string{
	CmdBindReceiver:        "bind_receiver",
	CmdBindTransmitter:     "bind_transmitter",
	CmdBindTransceiver:     "bind_transceiver",
	CmdBindReceiverResp:    "bind_receiver_resp",
	CmdBindTransmitterResp: "bind_transmitter_resp",
	CmdBindTransceiverResp: "bind_transceiver_resp",
	CmdSubmitSM:            "submit_sm",
	CmdSubmitSMResp:        "submit_sm_resp",
	CmdDeliverSM:           "deliver_sm",
	CmdDeliverSMResp:       "deliver_sm_resp",
	CmdEnquireLink:         "enquire_link",
	CmdEnquireLinkResp:     "enquire_link_resp",
	CmdUnbind:              "unbind",
	CmdUnbindResp:          "unbind_resp",
	CmdGenericNack:         "generic_nack",
}

// CmdName returns the SMPP name of a command ID, or "unknown".
func CmdName(id uint32) string {
	if n, ok := cmdNames[id]; ok {
		return n
	}
	return "unknown"
}
