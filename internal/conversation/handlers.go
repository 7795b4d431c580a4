package conversation

import (
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/spitaweb-web/recepcion-autopilot-wa/internal/errors"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/payments"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/util"
)

// handleReset serves "0", "menu" and "inicio" from any state: the session
// is dropped and the menu re-sent. The case keeps its status; a reset is
// navigation, not a business milestone.
func (e *Engine) handleReset(t *turn) {
	t.resetSession = true
	t.reply(e.replies.Menu)
}

func (e *Engine) handleMenuOption(t *turn) {
	if t.option == 1 {
		t.c.Flow = model.FlowTurno
		t.c.ServiceLabel = e.replies.LabelTurno
		t.reply(e.replies.BookingTurno)
	} else {
		t.c.Flow = model.FlowEstudio
		t.c.ServiceLabel = e.replies.LabelEstudio
		t.reply(e.replies.BookingEstudio)
	}
	// Re-entering the menu starts the booking over on the same case.
	t.c.PaymentLink = ""
	t.c.PaymentOpID = ""
	t.c.Status = model.StatusAwaitingMrTurno
	t.sess.State = model.StateAwaitingBookingDone
}

func (e *Engine) handleMenuGreeting(t *turn) {
	b := bare(t.norm)
	switch {
	case strings.Contains(b, "gracias"):
		t.reply(e.replies.ThanksAck)
	case b == "chau" || b == "adios" || b == "hasta luego":
		t.reply(e.replies.Goodbye)
	default:
		t.reply(e.replies.Menu)
	}
}

func (e *Engine) handleMenuKeyword(t *turn) {
	switch t.keyword {
	case keywordInsurance:
		t.reply(e.replies.InsuranceInfo)
	case keywordContact:
		t.reply(e.replies.ContactInfo)
	case keywordHuman:
		if t.c.Flow == "" {
			t.c.Flow = model.FlowRecepcion
			t.c.ServiceLabel = e.replies.LabelRecepcion
		}
		t.c.Status = model.StatusHandoff
		t.sess.State = model.StateHandoff
		t.event(model.EventHandoffRequested, t.preview(), nil)
		t.reply(e.replies.HandoffIntro)
	}
}

// handleMenuFallback answers unrecognized menu input. Only a case that
// never got anywhere is downgraded to fallback; a confirmed or in-flight
// case keeps its milestone.
func (e *Engine) handleMenuFallback(t *turn) {
	if t.c.Status == model.StatusLead || t.c.Status == model.StatusFallback {
		t.c.Status = model.StatusFallback
	}
	t.reply(e.replies.Fallback)
}

func (e *Engine) handleBookingDone(t *turn) {
	t.c.Status = model.StatusAwaitingPatientType
	t.sess.State = model.StateAskPatientType
	t.reply(e.replies.AskPatientType)
}

func (e *Engine) handleBookingRemind(t *turn) {
	t.reply(e.replies.BookingRemind)
}

func (e *Engine) handlePatientType(t *turn) {
	if t.option == 1 {
		t.c.PatientType = model.PatientParticular
		e.createPaymentAndAdvance(t)
		return
	}
	t.c.PatientType = model.PatientObraSocial
	t.c.Status = model.StatusAwaitingOSName
	t.sess.State = model.StateAskOSName
	t.reply(e.replies.AskOSName)
}

func (e *Engine) handlePatientTypeRemind(t *turn) {
	t.reply(e.replies.PatientTypeAgain)
}

// handleOSName stores the insurer name. Credential-shaped input is
// bounced back so the name and the member number never swap columns.
func (e *Engine) handleOSName(t *turn) {
	if t.raw == "" {
		t.reply(e.replies.AskOSName)
		return
	}
	if looksLikeDigitRun(t.norm) {
		t.reply(e.replies.OSNameNumeric)
		return
	}
	t.c.OSName = t.raw
	t.c.Status = model.StatusAwaitingOSToken
	t.sess.State = model.StateAskOSToken
	t.reply(e.replies.AskOSToken)
}

func (e *Engine) handleOSToken(t *turn) {
	if t.raw == "" {
		t.reply(e.replies.AskOSToken)
		return
	}
	t.c.OSToken = t.raw
	log.Debug().
		Str("case_id", t.c.ID).
		Str("os_token", util.MaskCredential(t.raw)).
		Msg("insurance credential captured")
	e.createPaymentAndAdvance(t)
}

// createPaymentAndAdvance generates the Mercado Pago checkout link with
// the case id as external reference and moves the sender into the
// payment wait. Gateway failure diverts to a person instead of retrying
// in front of the patient.
func (e *Engine) createPaymentAndAdvance(t *turn) {
	label := t.c.ServiceLabel
	if label == "" {
		label = e.replies.LabelTurno
	}
	if e.links == nil {
		e.failPaymentLink(t, apperrors.New(apperrors.ErrCodePaymentLink, "payment gateway not configured"))
		return
	}

	link, err := e.links.CreateDepositLink(t.ctx, t.c.ID, label, e.deposit)
	if err != nil {
		e.failPaymentLink(t, err)
		return
	}

	t.c.DepositAmount = e.deposit
	t.c.PaymentLink = link
	t.c.Status = model.StatusAwaitingPayment
	t.sess.State = model.StateAwaitingPayment
	t.event(model.EventPaymentLinkCreated, link, map[string]any{"amount": e.deposit})
	t.reply(e.replies.WithLink(link))
	t.scheduleReminder = true
}

func (e *Engine) failPaymentLink(t *turn, err error) {
	log.Error().Err(err).Str("case_id", t.c.ID).Msg("payment link creation failed")
	t.c.Status = model.StatusMPFailed
	t.sess.State = model.StateHandoff
	t.event(model.EventPaymentLinkFailed, err.Error(), nil)
	t.reply(e.replies.PaymentFailed)
}

func (e *Engine) handlePaymentOpID(t *turn) {
	var v payments.Verifier
	if e.provider != nil {
		v = payments.NewReferenceVerifier(e.provider, t.opID)
	}
	e.verifyAndSettle(t, v, map[string]any{"op_id": t.opID})
}

func (e *Engine) handlePaymentPaid(t *turn) {
	var v payments.Verifier
	if e.provider != nil {
		v = payments.NewSearchVerifier(e.provider)
	}
	e.verifyAndSettle(t, v, nil)
}

// verifyAndSettle confirms the case only on a full match: approved
// status, this case's reference, the expected amount. Anything less
// keeps the sender in the payment wait with an honest "not found yet".
func (e *Engine) verifyAndSettle(t *turn, v payments.Verifier, meta map[string]any) {
	if v == nil {
		log.Warn().Str("case_id", t.c.ID).Msg("payment provider not wired, cannot verify")
		t.event(model.EventPaymentCheckFailed, "verificacion no disponible", meta)
		t.reply(e.replies.PaymentPending)
		return
	}

	info, ok, err := v.Verify(t.ctx, t.c.ID, e.depositFor(t))
	if err != nil {
		log.Error().Err(err).Str("case_id", t.c.ID).Msg("payment verification failed")
		t.event(model.EventPaymentCheckFailed, err.Error(), meta)
		t.reply(e.replies.PaymentPending)
		return
	}
	if !ok {
		t.event(model.EventPaymentCheckFailed, "sin pago aprobado que coincida", meta)
		t.reply(e.replies.PaymentPending)
		return
	}
	e.confirmPayment(t, info)
}

// handlePaymentMedia treats an attachment in the payment wait as a
// receipt: verify against the provider (the caption may carry the
// operation id), and when verification cannot settle it, hand the case
// to a person rather than auto-confirming.
func (e *Engine) handlePaymentMedia(t *turn) {
	meta := map[string]any{"kind": t.in.MediaKind}
	t.event(model.EventMediaReceived, t.preview(), meta)

	var v payments.Verifier
	if e.provider != nil {
		if id := extractOpID(t.norm); id != "" {
			meta["op_id"] = id
			v = payments.NewReferenceVerifier(e.provider, id)
		} else {
			v = payments.NewSearchVerifier(e.provider)
		}
	}
	if v == nil {
		e.sendToReview(t, "comprobante sin verificacion automatica")
		return
	}

	info, ok, err := v.Verify(t.ctx, t.c.ID, e.depositFor(t))
	if err != nil {
		log.Error().Err(err).Str("case_id", t.c.ID).Msg("receipt verification failed")
		t.event(model.EventPaymentCheckFailed, err.Error(), meta)
		e.sendToReview(t, "comprobante recibido, verificacion con error")
		return
	}
	if !ok {
		t.event(model.EventPaymentCheckFailed, "sin pago aprobado que coincida", meta)
		e.sendToReview(t, "comprobante recibido sin pago aprobado")
		return
	}
	e.confirmPayment(t, info)
}

func (e *Engine) sendToReview(t *turn, reason string) {
	t.c.Status = model.StatusHandoff
	t.sess.State = model.StateHandoff
	t.event(model.EventHandoffRequested, reason, nil)
	t.reply(e.replies.MediaReview)
}

func (e *Engine) handlePaymentRemind(t *turn) {
	t.reply(e.replies.PaymentPrompt)
}

func (e *Engine) confirmPayment(t *turn, info *payments.PaymentInfo) {
	t.c.PaymentOpID = info.OpID
	t.c.Status = model.StatusConfirmed
	t.event(model.EventPaymentConfirmed, "operacion "+info.OpID,
		map[string]any{"op_id": info.OpID, "amount": info.Amount})
	t.reply(e.replies.PaymentConfirmed)
	t.resetSession = true
}

// handleHandoffAck answers messages sent while an operator contact is
// pending, then resets the session so the next message starts clean.
func (e *Engine) handleHandoffAck(t *turn) {
	log.Info().
		Str("sender_id", t.in.SenderID).
		Str("case_id", t.c.ID).
		Str("message", t.preview()).
		Msg("message while waiting for an operator")
	t.reply(e.replies.HandoffAck)
	t.resetSession = true
}

// depositFor prefers the amount the link was created with; config only
// backfills cases that never reached link creation.
func (e *Engine) depositFor(t *turn) float64 {
	if t.c.DepositAmount > 0 {
		return t.c.DepositAmount
	}
	return e.deposit
}
