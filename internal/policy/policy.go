package policy

import (
	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/internal/config"
	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/internal/smpp"
)

// DeferredDLR describes the delivery receipt a submit earns, fired
// later by the scheduler.
type DeferredDLR struct {
	Stat    string
	ErrCode string
	Mode    model.DeliveryMode
}

// Disposition is the full outcome of the decision policy for one
// submit: the immediate submit_sm_resp status plus an optional deferred
// receipt.
type Disposition struct {
	Status   uint32
	Deferred *DeferredDLR
}

// row is one policy table entry. An empty ErrCode means "use the error
// code the classification mapped from the raw lookup".
type row struct {
	status   uint32
	deferDLR bool
	stat     string
	errCode  string
	mode     model.DeliveryMode
}

// Policy is a classification-to-disposition table. Variants are data:
// adding a deployment flavor means adding a table here, never a new
// code path in the session.
type Policy struct {
	name string
	rows map[model.Classification]row
}

var (
	rejectRow = row{status: smpp.StatusInvDstAdr}

	// the receipt claims DELIVRD but keeps the mapped error code, the
	// log record is the only place the real verdict survives
	filterAcceptRow = row{
		status:   smpp.StatusOK,
		deferDLR: true,
		stat:     model.StatDelivered,
		mode:     model.ModeLogOnly,
	}

	fullDeliveredRow = row{
		status:   smpp.StatusOK,
		deferDLR: true,
		stat:     model.StatDelivered,
		errCode:  "000",
		mode:     model.ModeSMPP,
	}

	fullUndeliveredRow = row{
		status:   smpp.StatusOK,
		deferDLR: true,
		stat:     model.StatUndelivered,
		mode:     model.ModeSMPP,
	}
)

// ForVariant builds the policy table for a configured variant. The
// timeoutClass option decides which row TIMEOUT verdicts take: "valid"
// treats an unanswered lookup as a reachable number, "invalid" as an
// unreachable one.
func ForVariant(variant, timeoutClass string) (*Policy, error) {
	var validRow, invalidRow row

	switch variant {
	case config.VariantFilterOnly:
		validRow = rejectRow
		invalidRow = filterAcceptRow
	case config.VariantFullDLR:
		validRow = fullDeliveredRow
		invalidRow = fullUndeliveredRow
	default:
		return nil, errors.Errorf("policy: unknown variant %q", variant)
	}

	timeoutRow := validRow
	if timeoutClass == "invalid" {
		timeoutRow = invalidRow
	}

	return &Policy{
		name: variant,
		rows: map[model.Classification]row{
			model.ClassificationValid:   validRow,
			model.ClassificationInvalid: invalidRow,
			model.ClassificationError:   invalidRow,
			model.ClassificationTimeout: timeoutRow,
		},
	}, nil
}

func (p *Policy) Name() string { return p.name }

// Decide maps a classification result to its disposition. Pure, no
// clock, no I/O.
func (p *Policy) Decide(result *model.ClassificationResult) Disposition {
	r, ok := p.rows[result.Classification]
	if !ok {
		// unknown verdicts fail closed
		return Disposition{Status: smpp.StatusSysErr}
	}

	d := Disposition{Status: r.status}
	if r.deferDLR {
		errCode := r.errCode
		if errCode == "" {
			errCode = result.DLRErrorCode
		}
		d.Deferred = &DeferredDLR{Stat: r.stat, ErrCode: errCode, Mode: r.mode}
	}
	return d
}
