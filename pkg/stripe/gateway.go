package stripe

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v81"

	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
)

const referenceMetadataKey = "reference"

// CheckoutHandle is what the organizer's browser needs to complete payment.
type CheckoutHandle struct {
	SessionID   string
	CheckoutURL string
}

// VerificationResult is the gateway's view of a payment reference.
type VerificationResult struct {
	Paid          bool
	AmountCents   int64
	Currency      string
	PaymentIntent string
}

// Gateway adapts the Stripe client to the escrow and dispute services. It
// covers both directions of money movement: collection (checkout, verify,
// refund) and disbursement (recipient resolution, transfer).
type Gateway struct {
	client *Client
}

// NewGateway wraps an initialized Stripe client.
func NewGateway(client *Client) (*Gateway, error) {
	if client == nil || client.API() == nil {
		return nil, fmt.Errorf("stripe client is required")
	}
	return &Gateway{client: client}, nil
}

// InitiateCheckout creates a checkout session carrying our reference in both
// the client reference id and the payment intent metadata, so either inbound
// channel can correlate the result back to the transaction row.
func (g *Gateway) InitiateCheckout(ctx context.Context, amountCents int64, currency, reference, description, callbackURL string) (*CheckoutHandle, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout amount must be positive")
	}
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout reference is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(reference),
		SuccessURL:        stripe.String(callbackURL + "?reference=" + reference),
		CancelURL:         stripe.String(callbackURL + "?reference=" + reference + "&cancelled=1"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(currency)),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{referenceMetadataKey: reference},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout:" + reference)

	session, err := g.client.API().CheckoutSessions.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating checkout session")
	}
	return &CheckoutHandle{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// VerifyTransaction asks Stripe what it believes about the given reference.
// Used before marking a transaction successful so a forged redirect cannot
// confirm an unpaid booking.
func (g *Gateway) VerifyTransaction(ctx context.Context, reference string) (*VerificationResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", referenceMetadataKey, reference),
			Context: ctx,
		},
	}

	iter := g.client.API().PaymentIntents.Search(params)
	for iter.Next() {
		intent := iter.PaymentIntent()
		return &VerificationResult{
			Paid:          intent.Status == stripe.PaymentIntentStatusSucceeded,
			AmountCents:   intent.Amount,
			Currency:      strings.ToUpper(string(intent.Currency)),
			PaymentIntent: intent.ID,
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "searching payment intents")
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no gateway record for reference %s", reference))
}

// Refund returns funds to the payer for the payment identified by reference.
// The idempotency key is derived from the caller's reference so retries after
// a timeout collapse into one refund.
func (g *Gateway) Refund(ctx context.Context, reference string, amountCents int64) (string, error) {
	if amountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	verification, err := g.VerifyTransaction(ctx, reference)
	if err != nil {
		return "", err
	}
	if !verification.Paid {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "cannot refund an unpaid reference")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(verification.PaymentIntent),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund:" + reference)

	refund, err := g.client.API().Refunds.New(params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating refund")
	}
	return refund.ID, nil
}

// ResolveRecipient validates the talent's connected payout account and
// returns the account id transfers should target.
func (g *Gateway) ResolveRecipient(ctx context.Context, payoutAccountHandle string) (string, error) {
	handle := strings.TrimSpace(payoutAccountHandle)
	if handle == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payout account handle is required")
	}

	params := &stripe.AccountParams{}
	params.Context = ctx

	account, err := g.client.API().Accounts.GetByID(handle, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving payout account")
	}
	if !account.PayoutsEnabled {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "payout account is not enabled for transfers")
	}
	return account.ID, nil
}

// Transfer moves escrowed funds to the recipient account. The reference doubles
// as the idempotency key, so a retried transfer after a timeout is a no-op.
func (g *Gateway) Transfer(ctx context.Context, recipientID string, amountCents int64, currency, reference string) (string, error) {
	if amountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(strings.ToLower(currency)),
		Destination:   stripe.String(recipientID),
		TransferGroup: stripe.String(reference),
	}
	params.Context = ctx
	params.SetIdempotencyKey("transfer:" + reference)

	transfer, err := g.client.API().Transfers.New(params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating transfer")
	}
	return transfer.ID, nil
}
