package model

import "time"

// Token is a single-use redemption code. A token with an empty Recipient is
// unissued; IssuedAt is set exactly when Recipient is.
type Token struct {
	Value     string     `json:"token"`
	Type      string     `json:"token_type"`
	Recipient string     `json:"email,omitempty"`
	IssuedAt  *time.Time `json:"used_at,omitempty"`
	Exported  bool       `json:"exported"`
}

// Issued reports whether the token has been bound to a recipient.
func (t Token) Issued() bool {
	return t.Recipient != ""
}

// TokenValues returns the values of the given tokens in order.
func TokenValues(tokens []Token) []string {
	values := make([]string, len(tokens))
	for i, t := range tokens {
		values[i] = t.Value
	}
	return values
}
