package transfer

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/roach88/stockledger/internal/ledger"
)

// Movement is one operator action at a site: goods leaving through one or
// more legs, all attested by the same info provider.
type Movement struct {
	SiteID         ledger.SiteID `json:"site_id" validate:"required"`
	InfoProviderID string        `json:"info_provider_id" validate:"required"`
	CreatedBy      string        `json:"created_by"`
	Period         ledger.Period `json:"period"`
	Legs           []Leg         `json:"legs" validate:"required,min=1,dive"`
}

// Leg is one destination or purpose within a Movement.
type Leg struct {
	Flow             ledger.Flow     `json:"flow"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReferenceStoreID ledger.SiteID   `json:"reference_store_id,omitempty"`
	Destination      string          `json:"destination,omitempty" validate:"max=200"`
}

// outboundFlows are the flows a Movement leg may carry. BOUGHT is recorded
// on its own through Initiator.Record; TRANSFERRED_IN only by the Reconciler.
var outboundFlows = map[ledger.Flow]bool{
	ledger.TransferredOut: true,
	ledger.Exported:       true,
	ledger.Processed:      true,
	ledger.Sold:           true,
	ledger.Lost:           true,
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// structValidator returns the shared validator. Field names in its errors
// are the json names so they line up with ledger field errors.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

var tagMessages = map[string]string{
	"required": "is required",
	"min":      "needs at least one leg",
	"max":      "is too long",
}

// fieldErrors translates validator errors into ledger field errors, using
// paths such as legs[2].destination.
func fieldErrors(err error, verr *ledger.ValidationError) {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		verr.Add("movement", err.Error())
		return
	}
	for _, fe := range ves {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %q check", fe.Tag())
		}
		verr.Add(path, fmt.Sprintf("%s %s", fe.Field(), msg))
	}
}

// Validate checks the movement before any entry is built. Every problem is
// reported, each under its own field path.
func (m Movement) Validate() error {
	verr := &ledger.ValidationError{}

	if err := structValidator().Struct(m); err != nil {
		fieldErrors(err, verr)
	}

	if _, ok := verr.Field("info_provider_id"); !ok && strings.TrimSpace(m.InfoProviderID) == "" {
		verr.Add("info_provider_id", "info_provider_id is required")
	}
	validatePeriod(m.Period, verr)

	for i, leg := range m.Legs {
		leg.validate(fmt.Sprintf("legs[%d]", i), m.SiteID, verr)
	}

	return verr.OrNil()
}

func validatePeriod(p ledger.Period, verr *ledger.ValidationError) {
	switch {
	case p.Start.IsZero():
		verr.Add("period.start", "period start is required")
	case p.End.IsZero():
		verr.Add("period.end", "period end is required")
	case p.End.Before(p.Start):
		verr.Add("period", "period end is before period start")
	}
}

func (l Leg) validate(prefix string, site ledger.SiteID, verr *ledger.ValidationError) {
	field := func(name string) string { return prefix + "." + name }

	if !outboundFlows[l.Flow] {
		verr.Add(field("flow"), fmt.Sprintf("flow %s cannot be part of a movement", l.Flow))
	}
	if !l.Quantity.IsPositive() {
		verr.Add(field("quantity"), "quantity must be greater than zero")
	}
	if l.UnitPrice.IsNegative() {
		verr.Add(field("unit_price"), "unit_price must not be negative")
	}

	switch l.Flow {
	case ledger.TransferredOut:
		switch {
		case l.ReferenceStoreID == "":
			verr.Add(field("reference_store_id"), "transfers need a destination site")
		case l.ReferenceStoreID == site:
			verr.Add(field("reference_store_id"), "transfers cannot be made within the same site")
		}
	default:
		if l.ReferenceStoreID != "" && l.ReferenceStoreID != site {
			verr.Add(field("reference_store_id"), "only transfers name another site")
		}
		if (l.Flow == ledger.Exported || l.Flow == ledger.Processed) && ledger.NormalizeLabel(l.Destination) == "" {
			verr.Add(field("destination"), "a destination label is required")
		}
	}
}

// entries builds one ledger entry per leg.
func (m Movement) entries() []ledger.Entry {
	out := make([]ledger.Entry, len(m.Legs))
	for i, leg := range m.Legs {
		out[i] = ledger.Entry{
			StoreID:          m.SiteID,
			Flow:             leg.Flow,
			Quantity:         leg.Quantity,
			UnitPrice:        leg.UnitPrice,
			Period:           m.Period,
			ReferenceStoreID: leg.ReferenceStoreID,
			Destination:      leg.Destination,
			InfoProviderID:   strings.TrimSpace(m.InfoProviderID),
			CreatedBy:        m.CreatedBy,
		}
	}
	return out
}
