package ledger

import (
	"fmt"
)

// Flow is the closed category of a ledger entry.
//
// The zero value is not a valid flow. Values outside the declared constants
// can only be produced by conversion and are rejected by Validate.
type Flow uint8

const (
	flowInvalid Flow = iota
	// Bought records goods received from outside the tracked network.
	Bought
	// Sold records goods leaving the network through a sale.
	Sold
	// TransferredOut records goods leaving a site for another tracked site.
	// It decrements the source immediately, confirmed or not.
	TransferredOut
	// TransferredIn records receipt of a confirmed transfer at the destination.
	TransferredIn
	// Exported records goods shipped out of the country.
	Exported
	// Processed records goods consumed by a processing facility.
	Processed
	// Lost records spoilage, theft, or any other unaccounted decrement.
	Lost
)

var flowNames = [...]string{
	flowInvalid:    "",
	Bought:         "BOUGHT",
	Sold:           "SOLD",
	TransferredOut: "TRANSFERRED_OUT",
	TransferredIn:  "TRANSFERRED_IN",
	Exported:       "EXPORTED",
	Processed:      "PROCESSED",
	Lost:           "LOST",
}

// Flows returns every valid flow in declaration order.
func Flows() []Flow {
	return []Flow{Bought, Sold, TransferredOut, TransferredIn, Exported, Processed, Lost}
}

// Valid reports whether f is one of the declared flows.
func (f Flow) Valid() bool {
	return f > flowInvalid && int(f) < len(flowNames)
}

// String returns the wire name of the flow (e.g. "TRANSFERRED_OUT").
func (f Flow) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Flow(%d)", uint8(f))
	}
	return flowNames[f]
}

// ParseFlow maps a wire name back to its Flow.
func ParseFlow(s string) (Flow, error) {
	for _, f := range Flows() {
		if flowNames[f] == s {
			return f, nil
		}
	}
	return flowInvalid, fmt.Errorf("unknown flow %q", s)
}

// Inbound reports whether the flow adds stock to the site it is recorded at.
//
// The switch is exhaustive; an undeclared flow panics because it can only
// come from a bad conversion, never from parsed or stored data.
func (f Flow) Inbound() bool {
	switch f {
	case Bought, TransferredIn:
		return true
	case Sold, TransferredOut, Exported, Processed, Lost:
		return false
	default:
		panic(fmt.Sprintf("ledger: inbound of invalid flow %d", uint8(f)))
	}
}

// Sign returns +1 for inbound flows and -1 for outbound flows.
func (f Flow) Sign() int {
	if f.Inbound() {
		return 1
	}
	return -1
}

// IsTransfer reports whether the flow is one side of a site-to-site transfer.
func (f Flow) IsTransfer() bool {
	return f == TransferredOut || f == TransferredIn
}

// MarshalText implements encoding.TextMarshaler.
func (f Flow) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("marshal flow: invalid flow %d", uint8(f))
	}
	return []byte(flowNames[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Flow) UnmarshalText(text []byte) error {
	parsed, err := ParseFlow(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
