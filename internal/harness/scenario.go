package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stockledger/internal/ledger"
)

// Scenario defines a ledger scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sites lists the site aliases to register, in order.
	Sites []string `yaml:"sites"`

	// Provider is the default info provider for steps that do not set one.
	// If empty, defaults to "provider-default".
	Provider string `yaml:"provider,omitempty"`

	// Steps drive the initiator and reconciler.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operator action.
type Step struct {
	// Action is one of record, move, confirm, reconcile.
	Action string `yaml:"action"`

	// Site is the recording site (record, move) or the destination (reconcile).
	Site string `yaml:"site,omitempty"`

	// Provider overrides the scenario's info provider. An explicit empty
	// string exercises the info provider gate.
	Provider *string `yaml:"provider,omitempty"`

	// Flow, Quantity, UnitPrice, Destination and As describe a record step.
	Flow        string `yaml:"flow,omitempty"`
	Quantity    string `yaml:"quantity,omitempty"`
	UnitPrice   string `yaml:"unit_price,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	As          string `yaml:"as,omitempty"`

	// Legs describe a move step.
	Legs []LegStep `yaml:"legs,omitempty"`

	// Entry is the alias to confirm.
	Entry string `yaml:"entry,omitempty"`

	// Decisions describe a reconcile step.
	Decisions []DecisionStep `yaml:"decisions,omitempty"`

	// Expect is the expected error code. Empty means OK.
	Expect string `yaml:"expect,omitempty"`

	// Outcomes are the expected per-decision outcomes of a reconcile step.
	Outcomes []string `yaml:"outcomes,omitempty"`
}

// LegStep is one leg of a move step.
type LegStep struct {
	Flow        string `yaml:"flow"`
	Quantity    string `yaml:"quantity"`
	UnitPrice   string `yaml:"unit_price,omitempty"`
	To          string `yaml:"to,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	As          string `yaml:"as,omitempty"`
}

// DecisionStep is one decision of a reconcile step.
type DecisionStep struct {
	Entry  string `yaml:"entry"`
	Accept bool   `yaml:"accept"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "stock": Check current (and optionally pending inbound) stock at Site
	// - "confirmed": Check the confirmed flag of Entry
	// - "pending": Check the number of transfers pending towards Site
	// - "entry_count": Check the number of rows, optionally of one Flow
	Type string `yaml:"type"`

	Site           string `yaml:"site,omitempty"`
	Current        string `yaml:"current,omitempty"`
	PendingInbound string `yaml:"pending_inbound,omitempty"`
	Entry          string `yaml:"entry,omitempty"`
	Confirmed      *bool  `yaml:"confirmed,omitempty"`
	Flow           string `yaml:"flow,omitempty"`
	Count          *int   `yaml:"count,omitempty"`
}

// Step action constants.
const (
	ActionRecord    = "record"
	ActionMove      = "move"
	ActionConfirm   = "confirm"
	ActionReconcile = "reconcile"
)

// Assertion type constants.
const (
	AssertStock      = "stock"
	AssertConfirmed  = "confirmed"
	AssertPending    = "pending"
	AssertEntryCount = "entry_count"
)

var expectCodes = []string{
	ledger.CodeOK,
	ledger.CodeValidation,
	ledger.CodeNotFound,
	ledger.CodeAlreadyConfirmed,
	ledger.CodePersistence,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Sites) == 0 {
		return fmt.Errorf("sites list is required and must be non-empty")
	}
	seen := make(map[string]bool, len(s.Sites))
	for i, site := range s.Sites {
		if site == "" {
			return fmt.Errorf("sites[%d]: alias is required", i)
		}
		if seen[site] {
			return fmt.Errorf("sites[%d]: duplicate alias %q", i, site)
		}
		seen[site] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	if st.Expect != "" && !slices.Contains(expectCodes, st.Expect) {
		return fmt.Errorf("steps[%d]: unknown expect code %q", index, st.Expect)
	}

	switch st.Action {
	case ActionRecord:
		if st.Site == "" || st.Flow == "" || st.Quantity == "" {
			return fmt.Errorf("steps[%d]: record requires site, flow and quantity", index)
		}
	case ActionMove:
		if st.Site == "" {
			return fmt.Errorf("steps[%d]: move requires site", index)
		}
	case ActionConfirm:
		if st.Entry == "" {
			return fmt.Errorf("steps[%d]: confirm requires entry", index)
		}
	case ActionReconcile:
		if st.Site == "" {
			return fmt.Errorf("steps[%d]: reconcile requires site", index)
		}
		if len(st.Outcomes) > 0 && len(st.Outcomes) != len(st.Decisions) {
			return fmt.Errorf("steps[%d]: %d outcomes for %d decisions", index, len(st.Outcomes), len(st.Decisions))
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}

	if st.Action != ActionReconcile && len(st.Outcomes) > 0 {
		return fmt.Errorf("steps[%d]: outcomes only apply to reconcile", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertStock:
		if a.Site == "" || a.Current == "" {
			return fmt.Errorf("assertions[%d]: stock requires site and current", index)
		}
	case AssertConfirmed:
		if a.Entry == "" || a.Confirmed == nil {
			return fmt.Errorf("assertions[%d]: confirmed requires entry and confirmed", index)
		}
	case AssertPending:
		if a.Site == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: pending requires site and count", index)
		}
	case AssertEntryCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: entry_count requires count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
