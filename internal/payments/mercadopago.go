package payments

import (
	"context"
	"fmt"
	"strconv"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	apperrors "github.com/spitaweb-web/recepcion-autopilot-wa/internal/errors"
)

// MercadoPago implements LinkCreator and Provider over the official SDK.
// The case id travels as external_reference on the preference so incoming
// payments can be matched back to their conversation.
type MercadoPago struct {
	prefs    preference.Client
	payments payment.Client
}

func NewMercadoPago(accessToken string) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("mercado pago access token is empty")
	}
	cfg, err := mpconfig.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercado pago config: %w", err)
	}
	return &MercadoPago{
		prefs:    preference.NewClient(cfg),
		payments: payment.NewClient(cfg),
	}, nil
}

func (m *MercadoPago) CreateDepositLink(ctx context.Context, caseID, serviceLabel string, amount float64) (string, error) {
	req := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:     serviceLabel,
				Quantity:  1,
				UnitPrice: amount,
			},
		},
		ExternalReference: caseID,
	}

	resp, err := m.prefs.Create(ctx, req)
	if err != nil {
		return "", apperrors.PaymentLink(err)
	}
	if resp.InitPoint == "" {
		return "", apperrors.PaymentLink(fmt.Errorf("preference %s has no init point", resp.ID))
	}
	return resp.InitPoint, nil
}

func (m *MercadoPago) GetPayment(ctx context.Context, opID string) (*PaymentInfo, error) {
	id, err := strconv.Atoi(opID)
	if err != nil {
		return nil, apperrors.InvalidInput("operation id", "not numeric")
	}

	resp, err := m.payments.Get(ctx, id)
	if err != nil {
		return nil, apperrors.PaymentLookup(err)
	}
	info := fromResponse(resp)
	return &info, nil
}

func (m *MercadoPago) SearchByReference(ctx context.Context, ref string) ([]PaymentInfo, error) {
	resp, err := m.payments.Search(ctx, payment.SearchRequest{
		Filters: map[string]string{
			"external_reference": ref,
			"sort":               "date_created",
			"criteria":           "desc",
		},
	})
	if err != nil {
		return nil, apperrors.PaymentLookup(err)
	}

	infos := make([]PaymentInfo, 0, len(resp.Results))
	for i := range resp.Results {
		infos = append(infos, fromResponse(&resp.Results[i]))
	}
	return infos, nil
}

func fromResponse(r *payment.Response) PaymentInfo {
	return PaymentInfo{
		OpID:              strconv.Itoa(r.ID),
		Status:            r.Status,
		ExternalReference: r.ExternalReference,
		Amount:            r.TransactionAmount,
	}
}
