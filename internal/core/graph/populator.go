package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

// Counts are merge statements issued, not vertices or edges created.
type Counts struct {
	NodesMerged int `json:"nodes_merged"`
	EdgesMerged int `json:"edges_merged"`
}

type Populator struct {
	store    Store
	identity IdentityResolver
	now      func() time.Time
}

func NewPopulator(store Store, identity IdentityResolver) *Populator {
	if identity == nil {
		identity = NaturalKey{}
	}
	return &Populator{store: store, identity: identity, now: time.Now}
}

// Populate merges one extraction in a fixed order: the Filing, then the
// Case, then each named contact. The first failing merge stops the run;
// everything merged before it stays valid and the whole run can be
// re-issued.
func (p *Populator) Populate(ctx context.Context, extractionID string, contacts []models.Contact, meta models.DocumentMetadata, fileName string) (Counts, error) {
	var c Counts
	step := ""

	fail := func(err error) (Counts, error) {
		return c, goerr.Wrap(fmt.Errorf("%w: %w", core.ErrGraphPopulation, err), "graph merge failed",
			goerr.V("extraction_id", extractionID),
			goerr.V("step", step),
			goerr.V("nodes_merged", c.NodesMerged),
			goerr.V("edges_merged", c.EdgesMerged),
		)
	}
	vertex := func(v Vertex) error {
		step = "vertex " + string(v.Label)
		if err := p.store.MergeVertex(ctx, v); err != nil {
			return err
		}
		c.NodesMerged++
		return nil
	}
	edge := func(e Edge) error {
		step = "edge " + string(e.Kind)
		if err := p.store.MergeEdge(ctx, e); err != nil {
			return err
		}
		c.EdgesMerged++
		return nil
	}

	filing := Ref{Label: LabelFiling, Prop: "extraction_id", Key: extractionID}
	if err := vertex(Vertex{
		Ref:     filing,
		Set:     map[string]any{"file_name": fileName},
		SetOnce: map[string]any{"created_at": p.now().UTC().Format(time.RFC3339)},
	}); err != nil {
		return fail(err)
	}

	var caseRef *Ref
	if no := trimmed(meta.CourtFileNo); no != "" {
		r := Ref{Label: LabelCase, Prop: "court_file_no", Key: no}
		caseRef = &r
		set := map[string]any{}
		if name := trimmed(meta.CaseName); name != "" {
			set["case_name"] = name
		}
		if err := vertex(Vertex{Ref: r, Set: set}); err != nil {
			return fail(err)
		}
		if err := edge(Edge{Kind: EdgeFiledIn, From: filing, To: r}); err != nil {
			return fail(err)
		}
	}

	for _, ct := range contacts {
		name := strings.TrimSpace(ct.Name)
		if name == "" {
			continue
		}
		// Punctuation-only names resolve to an empty merge key.
		person := p.identity.Resolve(LabelPerson, name)
		if person.Key == "" {
			continue
		}
		set := map[string]any{"name": name}
		for k, v := range map[string]*string{"email": ct.Email, "phone": ct.Phone, "address": ct.Address} {
			if s := trimmed(v); s != "" {
				set[k] = s
			}
		}
		if err := vertex(Vertex{Ref: person, Set: set}); err != nil {
			return fail(err)
		}
		if err := edge(Edge{Kind: EdgeExtractedFrom, From: person, To: filing}); err != nil {
			return fail(err)
		}

		role := trimmed(ct.Role)
		firmName := trimmed(ct.Firm)
		if firm := p.identity.Resolve(LabelFirm, firmName); firmName != "" && firm.Key != "" {
			if err := vertex(Vertex{Ref: firm, Set: map[string]any{"name": firmName}}); err != nil {
				return fail(err)
			}
			if err := edge(Edge{Kind: EdgeWorksAt, From: person, To: firm}); err != nil {
				return fail(err)
			}
			if caseRef != nil && role != "" {
				if err := edge(Edge{Kind: EdgeRepresents, From: firm, To: *caseRef, Props: map[string]any{"role": role}}); err != nil {
					return fail(err)
				}
			}
		}
		if caseRef != nil && role != "" {
			if err := edge(Edge{Kind: EdgeHasRole, From: person, To: *caseRef, Props: map[string]any{"role": role}}); err != nil {
				return fail(err)
			}
		}
	}
	return c, nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
