package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/config"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/ledger"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/messaging"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/payments"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/session"
)

const testSender = "5491122334455"

type sentMessage struct {
	to   string
	body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendText(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{to: to, body: body})
	return nil
}

func (s *fakeSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1].body
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeLinks struct {
	link      string
	err       error
	calls     int
	gotCaseID string
	gotLabel  string
	gotAmount float64
}

func (f *fakeLinks) CreateDepositLink(ctx context.Context, caseID, serviceLabel string, amount float64) (string, error) {
	f.calls++
	f.gotCaseID = caseID
	f.gotLabel = serviceLabel
	f.gotAmount = amount
	if f.err != nil {
		return "", f.err
	}
	return f.link, nil
}

type fakeProvider struct {
	payments map[string]*payments.PaymentInfo
	results  []payments.PaymentInfo
	err      error
}

func (p *fakeProvider) GetPayment(ctx context.Context, opID string) (*payments.PaymentInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	info, ok := p.payments[opID]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return info, nil
}

func (p *fakeProvider) SearchByReference(ctx context.Context, externalRef string) ([]payments.PaymentInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *fakeRecorder) Record(e *model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *fakeRecorder) has(typ model.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func (r *fakeRecorder) countOf(typ model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]func()
	delay     map[string]time.Duration
	canceled  []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		scheduled: make(map[string]func()),
		delay:     make(map[string]time.Duration),
	}
}

func (s *fakeScheduler) Schedule(senderID string, after time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[senderID] = fire
	s.delay[senderID] = after
}

func (s *fakeScheduler) Cancel(senderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, senderID)
	delete(s.scheduled, senderID)
}

func (s *fakeScheduler) pending(senderID string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled[senderID]
}

type fixture struct {
	engine   *Engine
	ledger   *ledger.MemoryLedger
	sessions *session.Store
	sender   *fakeSender
	links    *fakeLinks
	provider *fakeProvider
	recorder *fakeRecorder
	sched    *fakeScheduler
	replies  *Replies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		DepositAmount:      5000,
		ClinicName:         "Clínica del Centro",
		ClinicPhone:        "011 4000-0000",
		ClinicAddress:      "Av. Mitre 1234, Quilmes",
		ClinicHours:        "lunes a viernes de 8 a 20 hs",
		BookingURLTurnos:   "https://mrturno.example/clinica/turnos",
		BookingURLEstudios: "https://mrturno.example/clinica/estudios",
	}

	f := &fixture{
		ledger:   ledger.NewMemoryLedger(),
		sessions: session.NewStore(time.Hour),
		sender:   &fakeSender{},
		links:    &fakeLinks{link: "https://mpago.example/checkout/abc"},
		provider: &fakeProvider{payments: make(map[string]*payments.PaymentInfo)},
		recorder: &fakeRecorder{},
		sched:    newFakeScheduler(),
		replies:  NewReplies(cfg),
	}
	f.engine = New(Params{
		Sessions:      f.sessions,
		Ledger:        f.ledger,
		Sender:        f.sender,
		Links:         f.links,
		Provider:      f.provider,
		Audit:         f.recorder,
		Reminders:     f.sched,
		Replies:       f.replies,
		Deposit:       cfg.DepositAmount,
		PaymentWindow: 15 * time.Minute,
	})
	return f
}

func (f *fixture) send(text string) {
	f.engine.HandleInbound(context.Background(), messaging.Inbound{
		MessageID: "wamid-test",
		SenderID:  testSender,
		Text:      text,
	})
}

func (f *fixture) sendMedia(caption, kind string) {
	f.engine.HandleInbound(context.Background(), messaging.Inbound{
		MessageID: "wamid-test",
		SenderID:  testSender,
		Text:      caption,
		HasMedia:  true,
		MediaKind: kind,
	})
}

func (f *fixture) caseOf(t *testing.T) *model.Case {
	t.Helper()
	c, created, err := f.ledger.GetOrCreateCase(context.Background(), testSender)
	require.NoError(t, err)
	require.False(t, created, "case should already exist")
	return c
}

// approve registers an approved payment for the given op id and reference.
func (f *fixture) approve(opID, ref string, amount float64) {
	info := payments.PaymentInfo{
		OpID:              opID,
		Status:            payments.StatusApproved,
		ExternalReference: ref,
		Amount:            amount,
	}
	f.provider.payments[opID] = &info
	f.provider.results = append([]payments.PaymentInfo{info}, f.provider.results...)
}

func TestFlowTurnoParticular(t *testing.T) {
	f := newFixture(t)

	f.send("Hola")
	assert.Equal(t, f.replies.Menu, f.sender.last())

	f.send("1")
	assert.Equal(t, f.replies.BookingTurno, f.sender.last())
	c := f.caseOf(t)
	assert.Equal(t, model.FlowTurno, c.Flow)
	assert.Equal(t, model.StatusAwaitingMrTurno, c.Status)
	assert.Equal(t, "Turno médico", c.ServiceLabel)

	f.send("listo")
	assert.Equal(t, f.replies.AskPatientType, f.sender.last())
	assert.Equal(t, model.StatusAwaitingPatientType, f.caseOf(t).Status)

	f.send("1")
	require.Equal(t, 1, f.links.calls)
	assert.Equal(t, f.caseOf(t).ID, f.links.gotCaseID)
	assert.Equal(t, "Turno médico", f.links.gotLabel)
	assert.Equal(t, float64(5000), f.links.gotAmount)
	assert.Equal(t, f.replies.WithLink("https://mpago.example/checkout/abc"), f.sender.last())

	c = f.caseOf(t)
	assert.Equal(t, model.PatientParticular, c.PatientType)
	assert.Equal(t, model.StatusAwaitingPayment, c.Status)
	assert.Equal(t, float64(5000), c.DepositAmount)
	assert.NotNil(t, f.sched.pending(testSender))
	assert.True(t, f.recorder.has(model.EventPaymentLinkCreated))

	f.approve("87654321", c.ID, 5000)
	f.send("operacion 87654321")
	assert.Equal(t, f.replies.PaymentConfirmed, f.sender.last())

	c = f.caseOf(t)
	assert.Equal(t, model.StatusConfirmed, c.Status)
	assert.Equal(t, "87654321", c.PaymentOpID)
	assert.True(t, f.recorder.has(model.EventCaseCreated))
	assert.True(t, f.recorder.has(model.EventPaymentConfirmed))
	assert.Contains(t, f.sched.canceled, testSender)

	// The session is gone: the next message lands on the menu.
	assert.Equal(t, model.StateMenu, f.sessions.Get(testSender).State)
}

func TestFlowEstudioObraSocial(t *testing.T) {
	f := newFixture(t)

	f.send("buenas")
	f.send("2")
	assert.Equal(t, f.replies.BookingEstudio, f.sender.last())

	f.send("ya está")
	assert.Equal(t, f.replies.AskPatientType, f.sender.last())

	f.send("2")
	assert.Equal(t, f.replies.AskOSName, f.sender.last())
	assert.Equal(t, model.StatusAwaitingOSName, f.caseOf(t).Status)

	// A credential where the name belongs is bounced.
	f.send("40-12345678-9")
	assert.Equal(t, f.replies.OSNameNumeric, f.sender.last())
	assert.Equal(t, model.StatusAwaitingOSName, f.caseOf(t).Status)

	f.send("OSDE")
	assert.Equal(t, f.replies.AskOSToken, f.sender.last())

	f.send("40-12345678-9 0123")
	require.Equal(t, 1, f.links.calls)
	assert.Equal(t, "Estudio", f.links.gotLabel)

	c := f.caseOf(t)
	assert.Equal(t, model.FlowEstudio, c.Flow)
	assert.Equal(t, model.PatientObraSocial, c.PatientType)
	assert.Equal(t, "OSDE", c.OSName)
	assert.Equal(t, "40-12345678-9 0123", c.OSToken)
	assert.Equal(t, model.StatusAwaitingPayment, c.Status)
}

func TestPaymentNeverConfirmsWithoutFullMatch(t *testing.T) {
	t.Run("approved payment for another case", func(t *testing.T) {
		f := newFixture(t)
		f.send("1")
		f.send("listo")
		f.send("1")

		f.approve("111222333", "some-other-case", 5000)
		f.send("id 111222333")

		assert.Equal(t, f.replies.PaymentPending, f.sender.last())
		assert.Equal(t, model.StatusAwaitingPayment, f.caseOf(t).Status)
		assert.Empty(t, f.caseOf(t).PaymentOpID)
		assert.True(t, f.recorder.has(model.EventPaymentCheckFailed))
	})

	t.Run("wrong amount", func(t *testing.T) {
		f := newFixture(t)
		f.send("1")
		f.send("listo")
		f.send("1")

		f.approve("111222333", f.links.gotCaseID, 500)
		f.send("id 111222333")

		assert.Equal(t, f.replies.PaymentPending, f.sender.last())
		assert.Equal(t, model.StatusAwaitingPayment, f.caseOf(t).Status)
	})

	t.Run("provider error keeps the wait", func(t *testing.T) {
		f := newFixture(t)
		f.send("1")
		f.send("listo")
		f.send("1")

		f.provider.err = errors.New("mercado pago 500")
		f.send("ya pagué")

		assert.Equal(t, f.replies.PaymentPending, f.sender.last())
		assert.Equal(t, model.StatusAwaitingPayment, f.caseOf(t).Status)
		assert.True(t, f.recorder.has(model.EventPaymentCheckFailed))
	})
}

func TestPaidIntentSearchesNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.send("1")
	f.send("listo")
	f.send("1")
	caseID := f.links.gotCaseID

	// Newest result is still pending; the approved one behind it must win.
	f.provider.results = []payments.PaymentInfo{
		{OpID: "222", Status: "pending", ExternalReference: caseID, Amount: 5000},
		{OpID: "111", Status: payments.StatusApproved, ExternalReference: caseID, Amount: 5000},
	}
	f.send("ya pagué")

	assert.Equal(t, f.replies.PaymentConfirmed, f.sender.last())
	assert.Equal(t, "111", f.caseOf(t).PaymentOpID)
}

func TestPaymentLinkFailureHandsOff(t *testing.T) {
	f := newFixture(t)
	f.links.err = errors.New("mp checkout down")

	f.send("1")
	f.send("listo")
	f.send("1")

	assert.Equal(t, f.replies.PaymentFailed, f.sender.last())
	assert.Equal(t, model.StatusMPFailed, f.caseOf(t).Status)
	assert.True(t, f.recorder.has(model.EventPaymentLinkFailed))
	assert.Nil(t, f.sched.pending(testSender))

	// The sender now talks to a person; the next message is acked and the
	// session starts over.
	f.send("y ahora que hago")
	assert.Equal(t, f.replies.HandoffAck, f.sender.last())
	assert.Equal(t, model.StateMenu, f.sessions.Get(testSender).State)
}

func TestMediaReceipt(t *testing.T) {
	t.Run("unverifiable receipt goes to a person", func(t *testing.T) {
		f := newFixture(t)
		f.send("1")
		f.send("listo")
		f.send("1")

		f.sendMedia("", "image")

		assert.Equal(t, f.replies.MediaReview, f.sender.last())
		assert.Equal(t, model.StatusHandoff, f.caseOf(t).Status)
		assert.True(t, f.recorder.has(model.EventMediaReceived))
		assert.True(t, f.recorder.has(model.EventHandoffRequested))
	})

	t.Run("caption op id verifies directly", func(t *testing.T) {
		f := newFixture(t)
		f.send("1")
		f.send("listo")
		f.send("1")

		f.approve("123456789", f.links.gotCaseID, 5000)
		f.sendMedia("comprobante id 123456789", "image")

		assert.Equal(t, f.replies.PaymentConfirmed, f.sender.last())
		assert.Equal(t, model.StatusConfirmed, f.caseOf(t).Status)
	})
}

func TestResetFromPaymentWait(t *testing.T) {
	f := newFixture(t)
	f.send("1")
	f.send("listo")
	f.send("1")
	require.NotNil(t, f.sched.pending(testSender))

	f.send("menu")

	assert.Equal(t, f.replies.Menu, f.sender.last())
	assert.Equal(t, model.StateMenu, f.sessions.Get(testSender).State)
	assert.Nil(t, f.sched.pending(testSender))
	// Reset is navigation: the case keeps its milestone.
	assert.Equal(t, model.StatusAwaitingPayment, f.caseOf(t).Status)
}

func TestMenuKeywords(t *testing.T) {
	t.Run("insurance info", func(t *testing.T) {
		f := newFixture(t)
		f.send("atienden por obra social?")
		assert.Equal(t, f.replies.InsuranceInfo, f.sender.last())
	})

	t.Run("contact info", func(t *testing.T) {
		f := newFixture(t)
		f.send("donde queda el consultorio")
		assert.Equal(t, f.replies.ContactInfo, f.sender.last())
	})

	t.Run("human handoff", func(t *testing.T) {
		f := newFixture(t)
		f.send("quiero hablar con una persona")
		assert.Equal(t, f.replies.HandoffIntro, f.sender.last())

		c := f.caseOf(t)
		assert.Equal(t, model.FlowRecepcion, c.Flow)
		assert.Equal(t, model.StatusHandoff, c.Status)
		assert.True(t, f.recorder.has(model.EventHandoffRequested))

		f.send("gracias")
		assert.Equal(t, f.replies.HandoffAck, f.sender.last())
		f.send("hola")
		assert.Equal(t, f.replies.Menu, f.sender.last())
	})
}

func TestMenuFallbackNeverDowngradesProgress(t *testing.T) {
	f := newFixture(t)

	f.send("qbert")
	assert.Equal(t, f.replies.Fallback, f.sender.last())
	assert.Equal(t, model.StatusFallback, f.caseOf(t).Status)

	f.send("1")
	assert.Equal(t, model.StatusAwaitingMrTurno, f.caseOf(t).Status)

	// Back at the menu, garbage no longer rewrites the milestone.
	f.send("menu")
	f.send("qbert")
	assert.Equal(t, f.replies.Fallback, f.sender.last())
	assert.Equal(t, model.StatusAwaitingMrTurno, f.caseOf(t).Status)
}

func TestRebookingReusesCase(t *testing.T) {
	f := newFixture(t)
	f.send("1")
	f.send("listo")
	f.send("1")
	first := f.caseOf(t)

	f.approve("87654321", first.ID, 5000)
	f.send("id 87654321")
	require.Equal(t, model.StatusConfirmed, f.caseOf(t).Status)

	// Same sender books again: same case, payment fields cleared.
	f.send("2")
	c := f.caseOf(t)
	assert.Equal(t, first.ID, c.ID)
	assert.Equal(t, model.FlowEstudio, c.Flow)
	assert.Equal(t, model.StatusAwaitingMrTurno, c.Status)
	assert.Empty(t, c.PaymentLink)
	assert.Empty(t, c.PaymentOpID)
}

func TestGreetingDoesNotInterruptBookingWait(t *testing.T) {
	f := newFixture(t)
	f.send("1")

	f.send("hola")
	assert.Equal(t, f.replies.BookingRemind, f.sender.last())

	f.send("listo")
	assert.Equal(t, f.replies.AskPatientType, f.sender.last())
}

func TestPaymentReminder(t *testing.T) {
	f := newFixture(t)
	f.send("1")
	f.send("listo")
	f.send("1")

	fire := f.sched.pending(testSender)
	require.NotNil(t, fire)
	assert.Equal(t, 15*time.Minute, f.sched.delay[testSender])

	fire()
	assert.Equal(t, f.replies.PaymentReminder, f.sender.last())
	assert.Equal(t, 1, f.recorder.countOf(model.EventPaymentReminder))

	// A timer that survives confirmation must not nag.
	f.approve("87654321", f.links.gotCaseID, 5000)
	f.send("id 87654321")
	before := f.sender.count()
	fire()
	assert.Equal(t, before, f.sender.count())
	assert.Equal(t, 1, f.recorder.countOf(model.EventPaymentReminder))
}

type flakyLedger struct {
	*ledger.MemoryLedger
	fail bool
}

func (l *flakyLedger) GetOrCreateCase(ctx context.Context, senderID string) (*model.Case, bool, error) {
	if l.fail {
		return nil, false, errors.New("spreadsheet unavailable")
	}
	return l.MemoryLedger.GetOrCreateCase(ctx, senderID)
}

func (l *flakyLedger) UpdateCase(ctx context.Context, c *model.Case) error {
	if l.fail {
		return errors.New("spreadsheet unavailable")
	}
	return l.MemoryLedger.UpdateCase(ctx, c)
}

func (l *flakyLedger) AppendEvent(ctx context.Context, e *model.Event) error {
	if l.fail {
		return errors.New("spreadsheet unavailable")
	}
	return l.MemoryLedger.AppendEvent(ctx, e)
}

func TestLedgerOutageNeverStallsConversation(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyLedger{MemoryLedger: f.ledger, fail: true}
	f.engine = New(Params{
		Sessions:      f.sessions,
		Ledger:        flaky,
		Sender:        f.sender,
		Links:         f.links,
		Provider:      f.provider,
		Audit:         f.recorder,
		Reminders:     f.sched,
		Replies:       f.replies,
		Deposit:       5000,
		PaymentWindow: 15 * time.Minute,
	})

	f.send("hola")
	f.send("1")
	f.send("listo")
	f.send("1")

	// Every reply went out and the payment link was created against a
	// stable case id carried by the session.
	assert.Equal(t, 4, f.sender.count())
	require.Equal(t, 1, f.links.calls)
	assert.NotEmpty(t, f.links.gotCaseID)
	assert.Equal(t, f.links.gotCaseID, f.sessions.Get(testSender).CaseID)
}

func TestIgnoresEmptyInbound(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleInbound(context.Background(), messaging.Inbound{SenderID: testSender})
	f.engine.HandleInbound(context.Background(), messaging.Inbound{Text: "hola"})

	assert.Equal(t, 0, f.sender.count())
	assert.Equal(t, 0, f.sessions.Len())
}

func TestStateChangeEventsAreRecorded(t *testing.T) {
	f := newFixture(t)
	f.send("1")

	require.True(t, f.recorder.has(model.EventStateChanged))
	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	var found bool
	for _, e := range f.recorder.events {
		if e.Type == model.EventStateChanged && e.Preview == "menu -> awaiting_booking_done" {
			found = true
		}
	}
	assert.True(t, found)
}
