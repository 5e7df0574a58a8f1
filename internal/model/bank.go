package model

// BankConfig is immutable reference data describing a known bank or provider:
// how to recognize its notifications and which narration rule set applies.
// Seeded once at startup; the pipeline never mutates it.
type BankConfig struct {
	Name            string
	RuleSet         string // narration rule set key, see internal/narration
	Currency        string
	Host            string // mailbox auto-detection settings, carried as data only
	SenderAddresses []string
	SubjectKeywords []string
	HeaderSignature []string // ordered statement column names
	Port            int
	UseSSL          bool
}

// GenericRuleSet is the rule set key of the degraded fallback configuration
// used when a sender or statement layout is not recognized.
const GenericRuleSet = "generic"

// IsGeneric reports whether this is the fallback configuration.
func (c *BankConfig) IsGeneric() bool {
	return c.RuleSet == GenericRuleSet
}
