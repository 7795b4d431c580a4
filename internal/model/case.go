package model

import (
	"time"
)

// Case is one intake attempt by one sender. It is the unit mirrored to the
// ledger: a row in the Casos sheet (or table), updated in place as the
// conversation advances.
type Case struct {
	ID            string      `db:"case_id" json:"caseId"`
	SenderID      string      `db:"sender_id" json:"senderId"`
	Flow          FlowType    `db:"flow_type" json:"flowType"`
	PatientType   PatientType `db:"patient_type" json:"patientType,omitempty"`
	OSName        string      `db:"os_name" json:"osName,omitempty"`
	OSToken       string      `db:"os_token" json:"osToken,omitempty"`
	ServiceLabel  string      `db:"service_label" json:"serviceLabel,omitempty"`
	DepositAmount float64     `db:"deposit_amount" json:"depositAmount,omitempty"`
	PaymentLink   string      `db:"payment_link" json:"paymentLink,omitempty"`
	PaymentOpID   string      `db:"payment_op_id" json:"paymentOpId,omitempty"`
	Status        CaseStatus  `db:"status" json:"status"`
	LastMessage   string      `db:"last_message" json:"lastMessage,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// Clone returns a copy safe to mutate without racing ledger writers.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
