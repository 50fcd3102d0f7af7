package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76"

	"multibot/lib/sl"
)

const eventCheckoutCompleted = "checkout.session.completed"

// WebhookHandler returns an http.HandlerFunc for Stripe's webhook POST,
// grounded on the teacher's stripehandler.HandleWebhook: read body, verify
// signature, switch on event type, 200 regardless of downstream outcome so
// Stripe does not retry a permanently-unprocessable event.
func (s *Service) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read", http.StatusBadRequest)
			return
		}

		if !s.VerifySignature(payload, r.Header.Get("Stripe-Signature")) {
			s.log.Warn("stripe webhook signature mismatch")
			http.Error(w, "signature", http.StatusBadRequest)
			return
		}

		var evt stripe.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			http.Error(w, "json", http.StatusBadRequest)
			return
		}

		log := s.log.With(slog.String("event_id", evt.ID), slog.String("event_type", string(evt.Type)))

		if evt.Type == eventCheckoutCompleted {
			var sess stripe.CheckoutSession
			if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
				log.With(sl.Err(err)).Error("decode checkout session")
				w.WriteHeader(http.StatusOK)
				return
			}
			if err := s.CompleteCheckout(r.Context(), &sess); err != nil {
				log.With(sl.Err(err)).Error("complete checkout")
			}
		} else {
			log.Debug("ignored stripe event")
		}

		w.WriteHeader(http.StatusOK)
	}
}
