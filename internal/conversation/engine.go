// Package conversation drives the WhatsApp intake flow: a state machine
// over (session state, input class) that walks a patient from the menu
// through booking, patient type, and the deposit, mirroring every step
// into the case ledger.
package conversation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/config"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/ledger"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/messaging"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/payments"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/session"
)

// EventRecorder receives audit events without blocking the turn.
type EventRecorder interface {
	Record(e *model.Event)
}

// ReminderScheduler arms the single payment reminder per sender.
// Scheduling again replaces any pending timer for that sender.
type ReminderScheduler interface {
	Schedule(senderID string, after time.Duration, fire func())
	Cancel(senderID string)
}

// Session context keys mirroring case facts, so a ledger outage degrades
// to session-only operation instead of stalling the conversation.
const (
	ctxFlow        = "flow"
	ctxPatientType = "patient_type"
	ctxOSName      = "os_name"
	ctxOSToken     = "os_token"
	ctxLabel       = "label"
	ctxLink        = "payment_link"
	ctxDeposit     = "deposit"
	ctxStatus      = "status"
)

type Params struct {
	Sessions      *session.Store
	Ledger        ledger.Ledger
	Sender        messaging.Sender
	Links         payments.LinkCreator
	Provider      payments.Provider
	Audit         EventRecorder
	Reminders     ReminderScheduler
	Replies       *Replies
	Deposit       float64
	PaymentWindow time.Duration
}

// Engine owns the conversation state machine. One instance serves all
// senders; turns for the same sender are serialized.
type Engine struct {
	sessions  *session.Store
	ledger    ledger.Ledger
	sender    messaging.Sender
	links     payments.LinkCreator
	provider  payments.Provider
	audit     EventRecorder
	reminders ReminderScheduler
	replies   *Replies
	deposit   float64
	window    time.Duration

	table map[stateClass]handlerFunc
	locks *senderLocks
}

func New(p Params) *Engine {
	e := &Engine{
		sessions:  p.Sessions,
		ledger:    p.Ledger,
		sender:    p.Sender,
		links:     p.Links,
		provider:  p.Provider,
		audit:     p.Audit,
		reminders: p.Reminders,
		replies:   p.Replies,
		deposit:   p.Deposit,
		window:    p.PaymentWindow,
		locks:     newSenderLocks(),
	}
	e.buildTable()
	return e
}

// turn carries everything one inbound message produces: the classified
// input, the session and case being advanced, and the side effects to
// flush at the end.
type turn struct {
	ctx  context.Context
	in   messaging.Inbound
	raw  string // trimmed first line, original casing
	norm string
	sess *model.Session
	c    *model.Case

	option  int
	keyword menuKeyword
	opID    string

	replies          []string
	events           []*model.Event
	resetSession     bool
	scheduleReminder bool
}

func (t *turn) reply(body string) {
	t.replies = append(t.replies, body)
}

func (t *turn) event(typ model.EventType, preview string, payload any) {
	t.events = append(t.events, ledger.NewEvent(t.c.ID, t.in.SenderID, typ, preview, payload))
}

// preview is the human-readable short form of the inbound message, used
// for last_message and event rows.
func (t *turn) preview() string {
	if t.raw != "" {
		return t.raw
	}
	if t.in.HasMedia {
		return "[" + t.in.MediaKind + "]"
	}
	return ""
}

type stateClass struct {
	state model.SessionState
	class inputClass
}

type handlerFunc func(*turn)

func (e *Engine) buildTable() {
	e.table = map[stateClass]handlerFunc{
		{model.StateMenu, classOption}:   e.handleMenuOption,
		{model.StateMenu, classGreeting}: e.handleMenuGreeting,
		{model.StateMenu, classKeyword}:  e.handleMenuKeyword,
		{model.StateMenu, classText}:     e.handleMenuFallback,

		{model.StateAwaitingBookingDone, classBookingOK}: e.handleBookingDone,
		{model.StateAwaitingBookingDone, classText}:      e.handleBookingRemind,

		{model.StateAskPatientType, classOption}: e.handlePatientType,
		{model.StateAskPatientType, classText}:   e.handlePatientTypeRemind,

		{model.StateAskOSName, classText}:  e.handleOSName,
		{model.StateAskOSToken, classText}: e.handleOSToken,

		{model.StateAwaitingPayment, classOpID}:  e.handlePaymentOpID,
		{model.StateAwaitingPayment, classPaid}:  e.handlePaymentPaid,
		{model.StateAwaitingPayment, classMedia}: e.handlePaymentMedia,
		{model.StateAwaitingPayment, classText}:  e.handlePaymentRemind,

		{model.StateHandoff, classText}: e.handleHandoffAck,
	}
}

// HandleInbound advances one sender by one message. It never fails the
// webhook: ledger or send errors are logged and the conversation keeps
// moving on whatever state survives.
func (e *Engine) HandleInbound(ctx context.Context, in messaging.Inbound) {
	if in.SenderID == "" || (in.Text == "" && !in.HasMedia) {
		return
	}

	unlock := e.locks.lock(in.SenderID)
	defer unlock()

	sess := e.sessions.Get(in.SenderID)
	t := &turn{
		ctx:  ctx,
		in:   in,
		raw:  FirstLine(in.Text),
		norm: Normalize(in.Text),
		sess: sess,
	}
	prev := sess.State

	e.loadCase(t)
	t.c.LastMessage = ledger.TruncateRunes(t.preview(), config.EventPreviewMaxLen)

	class := t.classify()
	e.dispatch(t, class)

	next := t.sess.State
	if t.resetSession {
		next = model.StateMenu
	}
	if next != prev {
		t.event(model.EventStateChanged, string(prev)+" -> "+string(next),
			map[string]any{"from": string(prev), "to": string(next)})
	}

	e.flush(t, prev, next)

	log.Info().
		Str("sender_id", in.SenderID).
		Str("case_id", t.c.ID).
		Str("class", string(class)).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("inbound handled")
}

func (e *Engine) dispatch(t *turn, class inputClass) {
	if class == classReset {
		e.handleReset(t)
		return
	}
	if h, ok := e.table[stateClass{t.sess.State, class}]; ok {
		h(t)
		return
	}
	if h, ok := e.table[stateClass{t.sess.State, classText}]; ok {
		h(t)
		return
	}
	e.handleMenuFallback(t)
}

// loadCase resolves the sender's case, creating it on first contact. A
// ledger failure degrades to a case rebuilt from the session mirror so
// the patient is never stalled on storage.
func (e *Engine) loadCase(t *turn) {
	c, created, err := e.ledger.GetOrCreateCase(t.ctx, t.in.SenderID)
	if err != nil {
		log.Error().Err(err).Str("sender_id", t.in.SenderID).
			Msg("case ledger unavailable, continuing from session")
		t.c = caseFromSession(t.sess)
		return
	}
	t.c = c
	if created {
		// A brand-new row while the session already carries facts means
		// the ledger lost (or never got) the earlier writes; refill them.
		if t.sess.CaseID != "" {
			restoreCaseFacts(t.c, t.sess)
		}
		t.event(model.EventCaseCreated, t.preview(), nil)
	}
}

func caseFromSession(sess *model.Session) *model.Case {
	c := ledger.NewCase(sess.SenderID)
	if sess.CaseID != "" {
		c.ID = sess.CaseID
	}
	restoreCaseFacts(c, sess)
	return c
}

func restoreCaseFacts(c *model.Case, sess *model.Session) {
	if v := sess.Get(ctxFlow); v != "" {
		c.Flow = model.FlowType(v)
	}
	if v := sess.Get(ctxPatientType); v != "" {
		c.PatientType = model.PatientType(v)
	}
	if v := sess.Get(ctxOSName); v != "" {
		c.OSName = v
	}
	if v := sess.Get(ctxOSToken); v != "" {
		c.OSToken = v
	}
	if v := sess.Get(ctxLabel); v != "" {
		c.ServiceLabel = v
	}
	if v := sess.Get(ctxLink); v != "" {
		c.PaymentLink = v
	}
	if v := sess.Get(ctxDeposit); v != "" {
		if amount, err := strconv.ParseFloat(v, 64); err == nil && amount > 0 {
			c.DepositAmount = amount
		}
	}
	if v := sess.Get(ctxStatus); v != "" {
		c.Status = model.CaseStatus(v)
	}
}

func (e *Engine) mirrorContext(t *turn) {
	t.sess.CaseID = t.c.ID
	t.sess.Set(ctxFlow, string(t.c.Flow))
	t.sess.Set(ctxPatientType, string(t.c.PatientType))
	t.sess.Set(ctxOSName, t.c.OSName)
	t.sess.Set(ctxOSToken, t.c.OSToken)
	t.sess.Set(ctxLabel, t.c.ServiceLabel)
	t.sess.Set(ctxLink, t.c.PaymentLink)
	t.sess.Set(ctxDeposit, strconv.FormatFloat(t.c.DepositAmount, 'f', 2, 64))
	t.sess.Set(ctxStatus, string(t.c.Status))
}

// flush applies the turn's side effects: session store, reminder timers,
// the case mirror, audit events, and finally the outbound replies.
func (e *Engine) flush(t *turn, prev, next model.SessionState) {
	senderID := t.in.SenderID

	if t.resetSession {
		e.sessions.Delete(senderID)
		e.cancelReminder(senderID)
	} else {
		e.mirrorContext(t)
		e.sessions.Put(t.sess)
	}
	if prev == model.StateAwaitingPayment && next != model.StateAwaitingPayment {
		e.cancelReminder(senderID)
	}
	if t.scheduleReminder && e.reminders != nil {
		e.reminders.Schedule(senderID, e.window, func() { e.firePaymentReminder(senderID) })
	}

	if err := e.ledger.UpdateCase(t.ctx, t.c); err != nil {
		log.Error().Err(err).Str("case_id", t.c.ID).Msg("case mirror update failed")
	}
	for _, ev := range t.events {
		e.record(ev)
	}
	for _, body := range t.replies {
		if err := e.sender.SendText(t.ctx, senderID, body); err != nil {
			log.Error().Err(err).Str("sender_id", senderID).Msg("reply send failed")
		}
	}
}

func (e *Engine) record(ev *model.Event) {
	if e.audit != nil {
		e.audit.Record(ev)
	}
}

func (e *Engine) cancelReminder(senderID string) {
	if e.reminders != nil {
		e.reminders.Cancel(senderID)
	}
}

// firePaymentReminder runs when the reminder timer for a sender expires.
// The session is re-checked under the sender lock; a timer that outlived
// the payment wait is a no-op.
func (e *Engine) firePaymentReminder(senderID string) {
	unlock := e.locks.lock(senderID)
	defer unlock()

	sess := e.sessions.Get(senderID)
	if sess.State != model.StateAwaitingPayment {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.SendTimeout)
	defer cancel()

	if err := e.sender.SendText(ctx, senderID, e.replies.PaymentReminder); err != nil {
		log.Error().Err(err).Str("sender_id", senderID).Msg("payment reminder send failed")
	}
	e.record(ledger.NewEvent(sess.CaseID, senderID, model.EventPaymentReminder,
		"recordatorio de seña enviado", nil))
}

// senderLocks serializes turns per sender. Entries are never removed; the
// map is bounded by the number of distinct patients contacting the line.
type senderLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newSenderLocks() *senderLocks {
	return &senderLocks{m: make(map[string]*sync.Mutex)}
}

func (l *senderLocks) lock(senderID string) func() {
	l.mu.Lock()
	mu, ok := l.m[senderID]
	if !ok {
		mu = &sync.Mutex{}
		l.m[senderID] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
