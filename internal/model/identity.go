package model

import "strings"

// Anonymous is the label logged for requests without a known identity.
const Anonymous = "anonymous"

// Identity is a resolved X-CS571-ID token.
type Identity struct {
	Token string
	Label string

	orgDomain string
}

func NewIdentity(token, label, orgDomain string) Identity {
	return Identity{Token: token, Label: label, orgDomain: orgDomain}
}

// Key is the canonical form of the token used to key per-identity state.
func (i Identity) Key() string {
	return strings.ToLower(i.Token)
}

// Username lowercases the account label and strips at most one trailing
// "@cs.<org>" or "@<org>" suffix.
func (i Identity) Username() string {
	name := strings.ToLower(i.Label)
	if i.orgDomain == "" {
		return name
	}
	org := strings.ToLower(i.orgDomain)
	if trimmed, ok := strings.CutSuffix(name, "@cs."+org); ok {
		return trimmed
	}
	if trimmed, ok := strings.CutSuffix(name, "@"+org); ok {
		return trimmed
	}
	return name
}
