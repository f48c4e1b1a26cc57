package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// MemoryStore keeps the graph in process with the same merge semantics as
// AGEStore.
type MemoryStore struct {
	mu       sync.Mutex
	vertices map[string]map[string]any
	edges    map[string]Edge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vertices: map[string]map[string]any{},
		edges:    map[string]Edge{},
	}
}

func refID(r Ref) string {
	return fmt.Sprintf("%s|%s|%s", r.Label, r.Prop, r.Key)
}

func (m *MemoryStore) MergeVertex(ctx context.Context, v Vertex) error {
	if err := v.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := refID(v.Ref)
	props, ok := m.vertices[id]
	if !ok {
		props = map[string]any{v.Prop: v.Key}
		m.vertices[id] = props
	}
	for k, val := range v.Set {
		props[k] = val
	}
	for k, val := range v.SetOnce {
		if _, exists := props[k]; !exists {
			props[k] = val
		}
	}
	return nil
}

// MergeEdge requires both endpoints to exist, like the MATCH in AGEStore.
func (m *MemoryStore) MergeEdge(ctx context.Context, e Edge) error {
	if err := e.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, r := range []Ref{e.From, e.To} {
		if _, ok := m.vertices[refID(r)]; !ok {
			return goerr.Wrap(ErrMissingEndpoint, "merge edge",
				goerr.V("kind", e.Kind),
				goerr.V("end", [...]string{"source", "target"}[k]),
				goerr.V("vertex", refID(r)),
			)
		}
	}
	m.edges[edgeID(e)] = e
	return nil
}

func edgeID(e Edge) string {
	keys := make([]string, 0, len(e.Props))
	for k := range e.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s", e.Kind, refID(e.From), refID(e.To))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, e.Props[k])
	}
	return b.String()
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) VertexCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vertices)
}

func (m *MemoryStore) EdgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edges)
}

// Vertex returns a copy of the stored properties.
func (m *MemoryStore) Vertex(r Ref) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.vertices[refID(r)]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, true
}

// EdgesOf counts edges of one kind.
func (m *MemoryStore) EdgesOf(kind EdgeKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.edges {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
