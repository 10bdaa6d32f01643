package span

// ConfigName names one of the configurations a Rule can route a span into.
type ConfigName string

// Rule pairs a selector with the configuration it routes matching spans
// into (spec §3: "{select: SpanSelector, config: ConfigName}").
type Rule struct {
	Select Selector
	Config ConfigName
}

// RuleList is one outer entry of the two-dimensional rule list: the engine
// picks at most one inner rule per outer entry.
type RuleList []Rule

// Classify walks each outer rule list and, within it, picks the first
// inner rule whose selector matches (span, parent). It returns the set of
// matched configurations, deduplicated, in the order first encountered
// (spec §4.2: "duplicates across outer lists are idempotent").
func Classify(rules []RuleList, s *Span, parent *Span) []ConfigName {
	seen := make(map[ConfigName]struct{})
	var configs []ConfigName
	for _, list := range rules {
		for _, rule := range list {
			if rule.Select.Match(s, parent) {
				if _, dup := seen[rule.Config]; !dup {
					seen[rule.Config] = struct{}{}
					configs = append(configs, rule.Config)
				}
				break
			}
		}
	}
	return configs
}
