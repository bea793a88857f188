package service

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"badger/bakery-api/internal/model"
)

// IdentityResolver maps X-CS571-ID tokens to account labels. The table is
// immutable once built.
type IdentityResolver struct {
	labels    map[string]string
	orgDomain string
}

func NewIdentityResolver(associations map[string]string, orgDomain string) *IdentityResolver {
	labels := make(map[string]string, len(associations))
	for token, label := range associations {
		labels[strings.ToLower(token)] = label
	}
	return &IdentityResolver{labels: labels, orgDomain: orgDomain}
}

// LoadAssociations reads "label,token" lines. Blank lines and lines without
// both fields are skipped; a repeated token keeps the last label.
func LoadAssociations(r io.Reader) (map[string]string, error) {
	associations := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		label, token, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		label, token = strings.TrimSpace(label), strings.TrimSpace(token)
		if label == "" || token == "" {
			continue
		}
		associations[token] = label
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read associations: %w", err)
	}
	return associations, nil
}

func (r *IdentityResolver) Resolve(token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrMissingIdentity
	}
	label, ok := r.labels[strings.ToLower(token)]
	if !ok {
		return model.Identity{}, ErrUnknownIdentity
	}
	return model.NewIdentity(token, label, r.orgDomain), nil
}

// Label returns the account label for token, or model.Anonymous.
func (r *IdentityResolver) Label(token string) string {
	if id, err := r.Resolve(token); err == nil {
		return id.Label
	}
	return model.Anonymous
}

func (r *IdentityResolver) Len() int {
	return len(r.labels)
}
