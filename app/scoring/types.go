package scoring

// SourceURLKey makes a rule read the item's source URL instead of a characteristic.
const SourceURLKey = "source_url"

// RuleTable maps a rule-set name to the points awarded for each attribute value.
type RuleTable map[string]map[string]int

type RuleRef struct {
	RuleKey           string `json:"rule_key"`
	CharacteristicKey string `json:"characteristic_key"`
}

// RuleSpec is the ordered list of rules applied to every item.
type RuleSpec []RuleRef

// RuleSet is a validated pair of RuleTable and RuleSpec.
type RuleSet struct {
	Table RuleTable
	Spec  RuleSpec
	// Allowed lists the accepted values per characteristic key, sorted.
	Allowed map[string][]string
}
