package model

// FlowType identifies which intake flow a case belongs to.
type FlowType string

const (
	FlowTurno     FlowType = "turno"
	FlowEstudio   FlowType = "estudio"
	FlowRecepcion FlowType = "recepcion"
)

type PatientType string

const (
	PatientUnset      PatientType = ""
	PatientParticular PatientType = "particular"
	PatientObraSocial PatientType = "obra_social"
)

// CaseStatus is the durable business status mirrored to the ledger. It
// follows the session state loosely: sessions are transient and reset,
// the case keeps the last meaningful milestone.
type CaseStatus string

const (
	StatusLead                CaseStatus = "lead"
	StatusAwaitingMrTurno     CaseStatus = "awaiting_mrturno"
	StatusAwaitingPatientType CaseStatus = "awaiting_patient_type"
	StatusAwaitingOSName      CaseStatus = "awaiting_os_name"
	StatusAwaitingOSToken     CaseStatus = "awaiting_os_token"
	StatusAwaitingPayment     CaseStatus = "awaiting_payment"
	StatusMPFailed            CaseStatus = "mp_failed"
	StatusConfirmed           CaseStatus = "confirmed"
	StatusHandoff             CaseStatus = "handoff"
	StatusFallback            CaseStatus = "fallback"
)

// SessionState is a node in the conversation state machine. An absent or
// expired session is equivalent to StateMenu.
type SessionState string

const (
	StateMenu                SessionState = "menu"
	StateAwaitingBookingDone SessionState = "awaiting_booking_done"
	StateAskPatientType      SessionState = "ask_patient_type"
	StateAskOSName           SessionState = "ask_os_name"
	StateAskOSToken          SessionState = "ask_os_token"
	StateAwaitingPayment     SessionState = "awaiting_payment"
	StateHandoff             SessionState = "handoff"
)

type EventType string

const (
	EventCaseCreated        EventType = "case_created"
	EventStateChanged       EventType = "state_changed"
	EventPaymentLinkCreated EventType = "payment_link_created"
	EventPaymentLinkFailed  EventType = "payment_link_failed"
	EventPaymentConfirmed   EventType = "payment_confirmed"
	EventPaymentCheckFailed EventType = "payment_check_failed"
	EventPaymentReminder    EventType = "payment_reminder_sent"
	EventMediaReceived      EventType = "media_received"
	EventHandoffRequested   EventType = "handoff_requested"
	EventSessionExpired     EventType = "session_expired"
)
