package policy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// legacyPack is the pre-v3 on-disk shape: flat keys instead of the nested
// *_policy objects, recovered from the corpus's config-format-migration
// pattern (several retrieved repos carry a yaml.v2 legacy reader alongside
// newer JSON-driven config).
type legacyPack struct {
	ID                            string  `yaml:"id"`
	MaxTurnoverPct                *string `yaml:"max_turnover_pct"`
	EnableTaxAwareness            bool    `yaml:"enable_tax_awareness"`
	EnableWorkflowGates           bool    `yaml:"enable_workflow_gates"`
	WorkflowRequiresClientConsent bool    `yaml:"workflow_requires_client_consent"`
	ClientConsentAlreadyObtained  bool    `yaml:"client_consent_already_obtained"`
	ReplayEnabled                 bool    `yaml:"replay_enabled"`
}

// ParseLegacyCatalog reads a legacy YAML-v2 catalog document (a top-level
// list of flat pack records) into the current Pack shape. Only the fields
// the legacy format actually carried are populated; everything else is left
// at its zero value.
func ParseLegacyCatalog(data []byte) (Memory, error) {
	var raw []legacyPack
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy: parse legacy catalog: %w", err)
	}

	out := Memory{}
	for _, lp := range raw {
		pack := Pack{
			ID: lp.ID,
			TaxPolicy: TaxPolicy{EnableTaxAwareness: lp.EnableTaxAwareness},
			WorkflowPolicy: WorkflowPolicy{
				EnableWorkflowGates:           lp.EnableWorkflowGates,
				WorkflowRequiresClientConsent: lp.WorkflowRequiresClientConsent,
				ClientConsentAlreadyObtained:  lp.ClientConsentAlreadyObtained,
			},
			IdempotencyPolicy: IdempotencyPolicy{ReplayEnabled: lp.ReplayEnabled},
		}
		if lp.MaxTurnoverPct != nil {
			if d, err := decimal.NewFromString(*lp.MaxTurnoverPct); err == nil {
				pack.TurnoverPolicy.MaxTurnoverPct = &d
			}
		}
		out[pack.ID] = pack
	}
	return out, nil
}
