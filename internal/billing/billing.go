// Package billing wraps Stripe Checkout Session creation and webhook
// verification for token-package purchases, grounded on the teacher's
// internal/stripehandler signature-verification idiom and feeding
// internal/ledger.Purchase on a completed checkout.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/client"

	"multibot/entity"
	"multibot/internal/ledger"
	"multibot/lib/sl"
)

// Service creates Stripe Checkout Sessions for token packages and applies
// completed checkouts to the ledger.
type Service struct {
	sc            *client.API
	webhookSecret string
	ledger        *ledger.Ledger
	packages      map[string]*entity.TokenPackage
	log           *slog.Logger
}

func New(apiKey, webhookSecret string, packages []*entity.TokenPackage, led *ledger.Ledger, log *slog.Logger) *Service {
	sc := &client.API{}
	sc.Init(apiKey, nil)

	byID := make(map[string]*entity.TokenPackage, len(packages))
	for _, pkg := range packages {
		byID[pkg.ID] = pkg
	}

	return &Service{
		sc:            sc,
		webhookSecret: webhookSecret,
		ledger:        led,
		packages:      byID,
		log:           log.With(sl.Module("billing")),
	}
}

// Packages returns the configured catalog of purchasable token bundles.
func (s *Service) Packages() []*entity.TokenPackage {
	out := make([]*entity.TokenPackage, 0, len(s.packages))
	for _, pkg := range s.packages {
		out = append(out, pkg)
	}
	return out
}

// CreateCheckout starts a Stripe Checkout Session for telegramID to buy
// packageID, returning the session's hosted payment page URL.
func (s *Service) CreateCheckout(ctx context.Context, telegramID int64, botID, packageID, successURL, cancelURL string) (string, error) {
	pkg, ok := s.packages[packageID]
	if !ok {
		return "", fmt.Errorf("billing: unknown package %q", packageID)
	}

	currency := pkg.Currency
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		ClientReferenceID: stripe.String(fmt.Sprintf("%s:%d:%s", botID, telegramID, packageID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(pkg.Stars),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(pkg.Label),
						Description: stripe.String(pkg.Description),
					},
				},
			},
		},
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	return sess.URL, nil
}

// VerifySignature checks a Stripe-Signature header against the raw request
// body using the v1 HMAC-SHA256 scheme, tolerating up to 5 minutes of
// clock skew, matching the teacher's stripehandler.verifySignature.
func (s *Service) VerifySignature(payload []byte, header string) bool {
	const tolerance = 5 * time.Minute

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		switch {
		case strings.HasPrefix(part, "t="):
			ts = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v1="):
			sig = strings.TrimPrefix(part, "v1=")
		}
	}
	if ts == "" || sig == "" {
		return false
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(tsInt, 0)) > tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// ParseClientReference splits the client_reference_id set in CreateCheckout
// back into its components.
func ParseClientReference(ref string) (botID string, telegramID int64, packageID string, err error) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 {
		return "", 0, "", fmt.Errorf("billing: malformed client reference %q", ref)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("billing: malformed telegram id in reference %q: %w", ref, err)
	}
	return parts[0], id, parts[2], nil
}

// CompleteCheckout applies a finished Checkout Session to the ledger. It is
// idempotent per paymentID: the ledger's append-only transaction log is not
// itself deduplicated here, callers are expected to check transaction
// history for paymentID before invoking this, matching the original
// TokenManager's "caller validates pre-checkout" contract.
func (s *Service) CompleteCheckout(ctx context.Context, sess *stripe.CheckoutSession) error {
	botID, telegramID, packageID, err := ParseClientReference(sess.ClientReferenceID)
	if err != nil {
		return err
	}
	pkg, ok := s.packages[packageID]
	if !ok {
		return fmt.Errorf("billing: checkout references unknown package %q", packageID)
	}

	after, err := s.ledger.Purchase(ctx, telegramID, botID, pkg, sess.AmountTotal, sess.ID)
	if err != nil {
		return fmt.Errorf("billing: apply purchase: %w", err)
	}

	s.log.Info("purchase applied",
		sl.BotID(botID),
		slog.Int64("telegram_id", telegramID),
		slog.String("package", packageID),
		slog.Int64("balance_after", after),
		slog.String("country", customerCountryCode(sess)),
	)
	return nil
}

// customerCountryCode normalizes Stripe's free-text billing address country
// into an ISO alpha-2 code for locale-aware reporting, matching the
// teacher's ClientDetails.CountryCode normalization.
func customerCountryCode(sess *stripe.CheckoutSession) string {
	if sess.Customer == nil || sess.Customer.Address == nil || sess.Customer.Address.Country == "" {
		return ""
	}
	raw := sess.Customer.Address.Country
	if len(raw) == 2 {
		return strings.ToUpper(raw)
	}
	return countries.ByName(raw).Alpha2()
}
