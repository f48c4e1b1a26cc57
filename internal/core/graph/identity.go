package graph

import (
	"strings"
	"unicode"
)

// IdentityResolver decides which key a Person or Firm vertex merges on.
// Names that resolve to the same key become the same vertex.
type IdentityResolver interface {
	Resolve(label Label, name string) Ref
}

// NaturalKey merges on the exact name string. Distinct people who share a
// name collapse into one vertex, and spelling variants stay apart.
type NaturalKey struct{}

func (NaturalKey) Resolve(label Label, name string) Ref {
	return Ref{Label: label, Prop: "name", Key: name}
}

// Normalized merges on a case-folded, whitespace-collapsed form of the name
// so "JANE  DOE" and "Jane Doe" meet. The display name is kept in "name".
type Normalized struct{}

func (Normalized) Resolve(label Label, name string) Ref {
	return Ref{Label: label, Prop: "name_key", Key: NormalizeName(name)}
}

// NormalizeName lowercases, trims, drops trailing punctuation and collapses
// internal whitespace.
func NormalizeName(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	out := strings.ToLower(strings.Join(fields, " "))
	return strings.TrimRight(out, ".,;:")
}

// ResolverFor maps a config value to a resolver; unknown values get NaturalKey.
func ResolverFor(name string) IdentityResolver {
	if name == "normalized" {
		return Normalized{}
	}
	return NaturalKey{}
}
