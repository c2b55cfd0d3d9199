package model

// Stat is one bucket of the token statistics: the number of tokens of Type
// that share the same issued and exported state.
type Stat struct {
	Type     string `json:"token_type"`
	Issued   bool   `json:"issued"`
	Exported bool   `json:"exported"`
	Count    int    `json:"count"`
}

// Label renders the bucket the way operators read it, e.g. "GA sent" or
// "GA available unexported".
func (s Stat) Label() string {
	label := s.Type + " available"
	if s.Issued {
		label = s.Type + " sent"
	}
	if !s.Exported {
		label += " unexported"
	}
	return label
}
