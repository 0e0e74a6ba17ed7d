package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Period is the reported time span an entry covers. It is supplied by the
// operator and is not necessarily "now".
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Site is a tracked storage site (warehouse, collection point, store room).
type Site struct {
	ID        SiteID    `json:"id"`
	Name      string    `json:"name"`
	SyncID    string    `json:"sync_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is one ledger row.
type Entry struct {
	ID               EntryID         `json:"id"`
	StoreID          SiteID          `json:"store_id"`
	Flow             Flow            `json:"flow"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Period           Period          `json:"period"`
	ReferenceStoreID SiteID          `json:"reference_store_id,omitempty"`
	Destination      string          `json:"destination,omitempty"`
	InfoProviderID   string          `json:"info_provider_id"`
	Confirmed        bool            `json:"confirmed"`
	ResolvesEntryID  EntryID         `json:"resolves_entry_id,omitempty"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	SyncID           string          `json:"sync_id"`
}

// Pending reports whether the entry is an unconfirmed outbound transfer.
func (e Entry) Pending() bool {
	return e.Flow == TransferredOut && !e.Confirmed
}

// Validate checks the construction invariants of a new entry.
// Identity and timestamp fields are assigned by the store and not checked.
func (e Entry) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(string(e.StoreID)) == "" {
		verr.Add("store_id", "store_id is required")
	}

	if !e.Flow.Valid() {
		verr.Add("flow", "flow must be one of BOUGHT, SOLD, TRANSFERRED_OUT, TRANSFERRED_IN, EXPORTED, PROCESSED, LOST")
	}

	if !e.Quantity.IsPositive() {
		verr.Add("quantity", "quantity must be greater than zero")
	}
	if e.UnitPrice.IsNegative() {
		verr.Add("unit_price", "unit_price must not be negative")
	}

	switch {
	case e.Period.Start.IsZero():
		verr.Add("period.start", "period start is required")
	case e.Period.End.IsZero():
		verr.Add("period.end", "period end is required")
	case e.Period.End.Before(e.Period.Start):
		verr.Add("period", "period end is before period start")
	}

	if strings.TrimSpace(e.InfoProviderID) == "" {
		verr.Add("info_provider_id", "info provider is required")
	}

	if e.Flow.IsTransfer() {
		switch {
		case e.ReferenceStoreID == "":
			verr.Add("reference_store_id", "transfers require a counterparty site")
		case e.ReferenceStoreID == e.StoreID:
			verr.Add("reference_store_id", "transfers cannot be made within the same site")
		}
	} else if e.ReferenceStoreID != "" && e.ReferenceStoreID != e.StoreID {
		verr.Add("reference_store_id", fmt.Sprintf("%s entries cannot name another site", e.Flow))
	}

	if e.Flow == TransferredIn && e.ResolvesEntryID == "" {
		verr.Add("resolves_entry_id", "TRANSFERRED_IN must name the transfer it resolves")
	}
	if e.Flow != TransferredIn && e.ResolvesEntryID != "" {
		verr.Add("resolves_entry_id", "only TRANSFERRED_IN entries resolve a transfer")
	}

	if e.Confirmed {
		verr.Add("confirmed", "entries are created unconfirmed")
	}

	return verr.OrNil()
}

// NormalizeLabel canonicalises a free-form label such as an export country:
// NFC normalisation, trimmed, inner whitespace collapsed.
//
// Labels typed on different devices must compare equal after sync, and
// keyboards disagree about composed vs decomposed accents.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
