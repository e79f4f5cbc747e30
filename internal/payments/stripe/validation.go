package stripe

import "strings"

// KeyKind identifies which Stripe credential a key string carries.
type KeyKind string

const (
	KeyUnknown     KeyKind = ""
	KeySecret      KeyKind = "sk"
	KeyRestricted  KeyKind = "rk"
	KeyPublishable KeyKind = "pk"
)

// APIKey is the classification of a Stripe key. Only the prefix is inspected.
type APIKey struct {
	Kind KeyKind
	Live bool
}

// ParseKey classifies value by its "<kind>_<mode>_" prefix.
// Anything without a known kind yields KeyUnknown.
func ParseKey(value string) APIKey {
	kind, rest, ok := strings.Cut(strings.TrimSpace(value), "_")
	if !ok {
		return APIKey{}
	}

	switch k := KeyKind(kind); k {
	case KeySecret, KeyRestricted, KeyPublishable:
		return APIKey{Kind: k, Live: !strings.HasPrefix(rest, "test_")}
	default:
		return APIKey{}
	}
}

// IsSecret reports whether the key can authenticate server-side calls.
func (k APIKey) IsSecret() bool {
	return k.Kind == KeySecret || k.Kind == KeyRestricted
}
