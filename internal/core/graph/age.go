package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
)

// AGEStore runs merge statements against Apache AGE. Values always travel
// as the agtype parameter map; only allowlisted labels, edge kinds and
// property names appear in statement text.
type AGEStore struct {
	pool   *pgxpool.Pool
	graph  string
	quoted string
}

func NewAGEStore(ctx context.Context, url, graphName string, maxConns int32) (*AGEStore, error) {
	quoted, err := quoteGraphName(graphName)
	if err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, goerr.Wrap(err, "parse graph database url")
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, `LOAD 'age'`); err != nil {
			return goerr.Wrap(err, "load age extension")
		}
		if _, err := conn.Exec(ctx, `SET search_path = ag_catalog, "$user", public`); err != nil {
			return goerr.Wrap(err, "set search_path")
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, goerr.Wrap(err, "open graph pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "ping graph database")
	}
	return &AGEStore{pool: pool, graph: graphName, quoted: quoted}, nil
}

// EnsureGraph creates the graph when it does not exist yet.
func (s *AGEStore) EnsureGraph(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ag_catalog.ag_graph WHERE name = $1)`, s.graph).Scan(&exists)
	if err != nil {
		return goerr.Wrap(err, "check graph", goerr.V("graph", s.graph))
	}
	if exists {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `SELECT ag_catalog.create_graph(`+s.quoted+`)`); err != nil {
		return goerr.Wrap(err, "create graph", goerr.V("graph", s.graph))
	}
	return nil
}

func (s *AGEStore) MergeVertex(ctx context.Context, v Vertex) error {
	stmt, params, err := renderVertex(s.quoted, v)
	if err != nil {
		return err
	}
	return s.exec(ctx, stmt, params, goerr.V("label", v.Label))
}

func (s *AGEStore) MergeEdge(ctx context.Context, e Edge) error {
	stmt, params, err := renderEdge(s.quoted, e)
	if err != nil {
		return err
	}
	return s.exec(ctx, stmt, params, goerr.V("edge", e.Kind))
}

func (s *AGEStore) exec(ctx context.Context, stmt string, params map[string]any, opt goerr.Option) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return goerr.Wrap(err, "encode graph params", opt)
	}
	if _, err := s.pool.Exec(ctx, stmt, string(raw)); err != nil {
		return goerr.Wrap(err, "graph merge", opt)
	}
	return nil
}

func (s *AGEStore) Close() {
	s.pool.Close()
}

var graphNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{2,62}$`)

// quoteGraphName is the only place graph text is quoted into SQL.
func quoteGraphName(name string) (string, error) {
	if !graphNamePattern.MatchString(name) {
		return "", goerr.Wrap(ErrInvalidStatement, "invalid graph name", goerr.V("graph", name))
	}
	return pq.QuoteLiteral(name), nil
}

func wrapCypher(quoted, cypher, column string) string {
	return fmt.Sprintf("SELECT * FROM cypher(%s, $$ %s $$, $1) AS (%s agtype)", quoted, cypher, column)
}

func renderVertex(quoted string, v Vertex) (string, map[string]any, error) {
	if err := v.validate(); err != nil {
		return "", nil, err
	}
	params := map[string]any{"key": v.Key}
	var sets []string
	for _, k := range sortedKeys(v.Set) {
		p := "s_" + k
		params[p] = v.Set[k]
		sets = append(sets, fmt.Sprintf("v.%s = $%s", k, p))
	}
	for _, k := range sortedKeys(v.SetOnce) {
		p := "o_" + k
		params[p] = v.SetOnce[k]
		sets = append(sets, fmt.Sprintf("v.%s = coalesce(v.%s, $%s)", k, k, p))
	}

	cypher := fmt.Sprintf("MERGE (v:%s {%s: $key})", v.Label, v.Prop)
	if len(sets) > 0 {
		cypher += " SET " + strings.Join(sets, ", ")
	}
	cypher += " RETURN v"
	return wrapCypher(quoted, cypher, "v"), params, nil
}

func renderEdge(quoted string, e Edge) (string, map[string]any, error) {
	if err := e.validate(); err != nil {
		return "", nil, err
	}
	params := map[string]any{"from": e.From.Key, "to": e.To.Key}

	var props []string
	for _, k := range sortedKeys(e.Props) {
		p := "e_" + k
		params[p] = e.Props[k]
		props = append(props, fmt.Sprintf("%s: $%s", k, p))
	}
	rel := string(e.Kind)
	if len(props) > 0 {
		rel += " {" + strings.Join(props, ", ") + "}"
	}

	cypher := fmt.Sprintf(
		"MATCH (a:%s {%s: $from}), (b:%s {%s: $to}) MERGE (a)-[e:%s]->(b) RETURN e",
		e.From.Label, e.From.Prop, e.To.Label, e.To.Prop, rel,
	)
	return wrapCypher(quoted, cypher, "e"), params, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
