// Package graph merges extracted entities into a property graph.
package graph

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

type Label string

const (
	LabelPerson Label = "Person"
	LabelFirm   Label = "Firm"
	LabelCase   Label = "Case"
	LabelFiling Label = "Filing"
)

type EdgeKind string

const (
	EdgeWorksAt       EdgeKind = "WORKS_AT"
	EdgeHasRole       EdgeKind = "HAS_ROLE"
	EdgeFiledIn       EdgeKind = "FILED_IN"
	EdgeExtractedFrom EdgeKind = "EXTRACTED_FROM"
	EdgeRepresents    EdgeKind = "REPRESENTS"
)

var (
	validLabels = map[Label]bool{LabelPerson: true, LabelFirm: true, LabelCase: true, LabelFiling: true}
	validEdges  = map[EdgeKind]bool{
		EdgeWorksAt: true, EdgeHasRole: true, EdgeFiledIn: true, EdgeExtractedFrom: true, EdgeRepresents: true,
	}
	propName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

	ErrInvalidStatement = goerr.New("invalid graph statement")
	ErrMissingEndpoint  = goerr.New("edge endpoint vertex missing")
)

// Ref identifies a vertex by its merge key.
type Ref struct {
	Label Label
	Prop  string
	Key   string
}

// Vertex is merged on Ref. Set is applied on every merge; SetOnce only
// when the property is still absent.
type Vertex struct {
	Ref
	Set     map[string]any
	SetOnce map[string]any
}

// Edge is merged on (Kind, From, To, Props).
type Edge struct {
	Kind  EdgeKind
	From  Ref
	To    Ref
	Props map[string]any
}

// Store applies merge statements. Every call is independently idempotent.
type Store interface {
	MergeVertex(ctx context.Context, v Vertex) error
	MergeEdge(ctx context.Context, e Edge) error
	Close()
}

func (r Ref) validate() error {
	if !validLabels[r.Label] {
		return goerr.Wrap(ErrInvalidStatement, "unknown label", goerr.V("label", r.Label))
	}
	if !propName.MatchString(r.Prop) {
		return goerr.Wrap(ErrInvalidStatement, "bad key property", goerr.V("prop", r.Prop))
	}
	if r.Key == "" {
		return goerr.Wrap(ErrInvalidStatement, "empty key", goerr.V("label", r.Label))
	}
	return nil
}

func (v Vertex) validate() error {
	if err := v.Ref.validate(); err != nil {
		return err
	}
	return validateProps(v.Set, v.SetOnce)
}

func (e Edge) validate() error {
	if !validEdges[e.Kind] {
		return goerr.Wrap(ErrInvalidStatement, "unknown edge kind", goerr.V("kind", e.Kind))
	}
	if err := e.From.validate(); err != nil {
		return err
	}
	if err := e.To.validate(); err != nil {
		return err
	}
	return validateProps(e.Props)
}

func validateProps(maps ...map[string]any) error {
	for _, m := range maps {
		for k := range m {
			if !propName.MatchString(k) {
				return goerr.Wrap(ErrInvalidStatement, "bad property name", goerr.V("prop", k))
			}
		}
	}
	return nil
}
