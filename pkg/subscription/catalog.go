package subscription

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Plan describes the price and billing period of a plan type.
type Plan struct {
	Type   PlanType
	Name   string
	Amount decimal.Decimal
	Period time.Duration
	// Paystack plan code used when enrolling the customer in recurring billing.
	GatewayPlanCode string
}

// Catalog holds the plans on sale.
type Catalog struct {
	currency string
	plans    map[PlanType]Plan
}

// DefaultCatalog is the built in price list.
func DefaultCatalog() *Catalog {
	return &Catalog{
		currency: "NGN",
		plans: map[PlanType]Plan{
			PlanTrial:   {Type: PlanTrial, Name: "Free trial", Amount: decimal.Zero, Period: 7 * 24 * time.Hour},
			PlanMonthly: {Type: PlanMonthly, Name: "Monthly", Amount: decimal.NewFromInt(500), Period: 30 * 24 * time.Hour},
			PlanYearly:  {Type: PlanYearly, Name: "Yearly", Amount: decimal.NewFromInt(5000), Period: 365 * 24 * time.Hour},
		},
	}
}

// Plan returns the plan for t.
func (c *Catalog) Plan(t PlanType) (Plan, error) {
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, t)
	}
	return p, nil
}

// Currency is the ISO code prices are expressed in.
func (c *Catalog) Currency() string {
	return c.currency
}

type catalogFile struct {
	Currency string `yaml:"currency"`
	Plans    []struct {
		Type            PlanType `yaml:"type"`
		Name            string   `yaml:"name"`
		Amount          string   `yaml:"amount"`
		PeriodDays      int      `yaml:"period_days"`
		GatewayPlanCode string   `yaml:"gateway_plan_code"`
	} `yaml:"plans"`
}

// LoadCatalog reads a YAML price list. Plans missing from the file keep
// their built in definition.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	c := DefaultCatalog()
	if f.Currency != "" {
		c.currency = f.Currency
	}
	for _, p := range f.Plans {
		if !p.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown plan type %q", ErrInvalidCatalog, p.Type)
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: plan %s amount: %v", ErrInvalidCatalog, p.Type, err)
		}
		if amount.IsNegative() || (p.Type.Paid() && !amount.IsPositive()) {
			return nil, fmt.Errorf("%w: plan %s amount must be positive", ErrInvalidCatalog, p.Type)
		}
		if p.PeriodDays <= 0 {
			return nil, fmt.Errorf("%w: plan %s period_days must be positive", ErrInvalidCatalog, p.Type)
		}
		name := p.Name
		if name == "" {
			name = c.plans[p.Type].Name
		}
		c.plans[p.Type] = Plan{
			Type:            p.Type,
			Name:            name,
			Amount:          amount,
			Period:          time.Duration(p.PeriodDays) * 24 * time.Hour,
			GatewayPlanCode: p.GatewayPlanCode,
		}
	}
	return c, nil
}

// LoadCatalogFile reads a YAML price list from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}
