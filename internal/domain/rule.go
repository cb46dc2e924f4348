package domain

// Rule names. The set is fixed; weights are supplied by configuration.
const (
	RuleExactAmount        = "exact_amount"
	RuleExactReference     = "exact_reference"
	RuleFuzzyReference     = "fuzzy_reference"
	RuleTimestampProximity = "timestamp_proximity"
	RuleAccountMatch       = "account_match"
	RuleCompositeKey       = "composite_key"
	RuleBankMatch          = "bank_match"
)

// RuleNames lists every rule in evaluation order.
var RuleNames = []string{
	RuleExactAmount,
	RuleExactReference,
	RuleFuzzyReference,
	RuleTimestampProximity,
	RuleAccountMatch,
	RuleCompositeKey,
	RuleBankMatch,
}

// DefaultRuleWeights returns the default weight of each rule. They sum to 1.0.
func DefaultRuleWeights() map[string]float64 {
	return map[string]float64{
		RuleExactAmount:        0.25,
		RuleExactReference:     0.20,
		RuleFuzzyReference:     0.15,
		RuleTimestampProximity: 0.15,
		RuleAccountMatch:       0.10,
		RuleCompositeKey:       0.10,
		RuleBankMatch:          0.05,
	}
}

// RuleScore is the output of one rule for one alert/candidate pair.
type RuleScore struct {
	Rule         string            `json:"rule"`
	Score        float64           `json:"score"`        // in [0,1]
	Weight       float64           `json:"weight"`       // in [0,1]
	Contribution float64           `json:"contribution"` // Score * Weight
	Details      map[string]string `json:"details,omitempty"`
}
