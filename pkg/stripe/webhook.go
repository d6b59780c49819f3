package stripe

import (
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
)

// VerifyWebhook checks the Stripe-Signature header against the signing secret
// and returns the decoded event. Rejecting here is the first line of defense
// against forged gateway callbacks.
func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.SigningSecret())
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeSecurity, err, "webhook signature verification failed")
	}
	return event, nil
}
