package entity

// TokenPackage describes a purchasable bundle of tokens, offered by the
// billing plugin and priced through Stripe Checkout. Modeled directly on
// the original TokenManager's TokenPackage dataclass.
type TokenPackage struct {
	ID          string
	Stars       int64 // nominal price, in the ledger's billing unit
	Tokens      int64
	Label       string
	Description string
	Currency    string // ISO 4217, defaults applied by the billing service
}

// DefaultTokenPackages is the fallback catalog used when the process
// environment does not configure one, mirroring DefaultPlugins' role for
// an empty bot plugin list.
func DefaultTokenPackages() []*TokenPackage {
	return []*TokenPackage{
		{ID: "small", Stars: 100, Tokens: 50, Label: "Starter Pack", Currency: "USD"},
		{ID: "medium", Stars: 450, Tokens: 250, Label: "Regular Pack", Currency: "USD"},
		{ID: "large", Stars: 800, Tokens: 500, Label: "Power Pack", Currency: "USD"},
	}
}
