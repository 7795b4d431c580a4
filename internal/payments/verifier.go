// Package payments adapts the Mercado Pago deposit flow: link creation on
// one side, payment verification on the other. The matching rule lives in
// Matches and nowhere else.
package payments

import (
	"context"
	"math"
)

// StatusApproved is the only provider status that can confirm a case.
const StatusApproved = "approved"

// amountEpsilon absorbs float representation noise, nothing more. A real
// amount difference must not confirm.
const amountEpsilon = 0.01

// PaymentInfo is the provider-neutral view of one payment.
type PaymentInfo struct {
	OpID              string
	Status            string
	ExternalReference string
	Amount            float64
}

// Provider is the slice of the payment API the verifiers need.
type Provider interface {
	// GetPayment looks up a single payment by operation id.
	GetPayment(ctx context.Context, opID string) (*PaymentInfo, error)
	// SearchByReference lists payments whose external reference equals ref,
	// newest first.
	SearchByReference(ctx context.Context, ref string) ([]PaymentInfo, error)
}

// LinkCreator mints a deposit checkout link tied to a case.
type LinkCreator interface {
	CreateDepositLink(ctx context.Context, caseID, serviceLabel string, amount float64) (string, error)
}

// Matches decides whether a payment confirms a case: approved status,
// external reference equal to the case id, and the expected deposit amount.
// Any one mismatch must not confirm.
func Matches(p *PaymentInfo, caseID string, deposit float64) bool {
	if p == nil {
		return false
	}
	return p.Status == StatusApproved &&
		p.ExternalReference == caseID &&
		math.Abs(p.Amount-deposit) < amountEpsilon
}

// Verifier attempts to confirm a deposit for a case. Implementations are
// selected by what the user supplied: an operation id enables the direct
// lookup, bare paid intent falls back to the search.
type Verifier interface {
	Verify(ctx context.Context, caseID string, deposit float64) (*PaymentInfo, bool, error)
}

// ReferenceVerifier checks the single payment named by a user-supplied
// operation id.
type ReferenceVerifier struct {
	provider Provider
	opID     string
}

func NewReferenceVerifier(provider Provider, opID string) *ReferenceVerifier {
	return &ReferenceVerifier{provider: provider, opID: opID}
}

func (v *ReferenceVerifier) Verify(ctx context.Context, caseID string, deposit float64) (*PaymentInfo, bool, error) {
	info, err := v.provider.GetPayment(ctx, v.opID)
	if err != nil {
		return nil, false, err
	}
	return info, Matches(info, caseID, deposit), nil
}

// SearchVerifier scans payments referencing the case id, newest first, and
// confirms on the first one satisfying the full matching rule.
type SearchVerifier struct {
	provider Provider
}

func NewSearchVerifier(provider Provider) *SearchVerifier {
	return &SearchVerifier{provider: provider}
}

func (v *SearchVerifier) Verify(ctx context.Context, caseID string, deposit float64) (*PaymentInfo, bool, error) {
	infos, err := v.provider.SearchByReference(ctx, caseID)
	if err != nil {
		return nil, false, err
	}
	for i := range infos {
		if Matches(&infos[i], caseID, deposit) {
			return &infos[i], true, nil
		}
	}
	return nil, false, nil
}
