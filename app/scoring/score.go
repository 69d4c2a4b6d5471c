package scoring

// Score sums the points of every rule in spec for the given item data.
// Missing characteristics and unmapped values add nothing. Results are not clamped.
func Score(characteristics map[string]string, sourceURL string, table RuleTable, spec RuleSpec) int {
	total := 0
	for _, ref := range spec {
		var value string
		if ref.CharacteristicKey == SourceURLKey {
			value = sourceURL
		} else {
			v, ok := characteristics[ref.CharacteristicKey]
			if !ok {
				continue
			}
			value = v
		}

		total += table[ref.RuleKey][value]
	}
	return total
}

func (rs *RuleSet) Score(characteristics map[string]string, sourceURL string) int {
	return Score(characteristics, sourceURL, rs.Table, rs.Spec)
}

// CharacteristicKeys returns the distinct characteristic keys in spec order,
// leaving out SourceURLKey.
func (rs *RuleSet) CharacteristicKeys() []string {
	seen := make(map[string]bool, len(rs.Spec))
	keys := make([]string, 0, len(rs.Spec))
	for _, ref := range rs.Spec {
		if ref.CharacteristicKey == SourceURLKey || seen[ref.CharacteristicKey] {
			continue
		}
		seen[ref.CharacteristicKey] = true
		keys = append(keys, ref.CharacteristicKey)
	}
	return keys
}
