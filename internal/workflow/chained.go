package workflow

// ChainedPrompt is a predefined follow-up user turn fed to the same agent
// conversation after a step's initial response. A step's agent
// configuration may declare a sequence of these; they are filtered by the
// run's selected conditions before being queued.
type ChainedPrompt struct {
	Label      string   `yaml:"label" json:"label"`
	Content    string   `yaml:"content" json:"content"`
	Conditions []string `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// Applicable reports whether this chain entry should be queued given the
// run's selected conditions. An empty Conditions set always applies.
func (c ChainedPrompt) Applicable(selected map[string]bool) bool {
	for _, cond := range c.Conditions {
		if !selected[cond] {
			return false
		}
	}
	return true
}

// FilterChainedPrompts keeps only the entries applicable to selected.
func FilterChainedPrompts(all []ChainedPrompt, selected map[string]bool) []ChainedPrompt {
	var out []ChainedPrompt
	for _, c := range all {
		if c.Applicable(selected) {
			out = append(out, c)
		}
	}
	return out
}
