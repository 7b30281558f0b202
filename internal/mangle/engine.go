package mangle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"tabpilot-mcp-server/internal/config"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// Fact is a normalized event emitted by the session manager, the upload
// workflow, the file stager or the imaging pipeline. Predicates in use:
// session_attached, session_released, upload_completed, upload_failed,
// stage_request, stage_resolved, image_stitched, image_compressed.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult represents a binding of variables to values from a Mangle query.
type QueryResult map[string]interface{}

// Engine wraps the Mangle deductive database with the temporal fact buffer
// the diagnostics tools query. Facts flow in from the automation workflows;
// rules loaded from the schema derive higher-level predicates.
type Engine struct {
	cfg          config.MangleConfig
	mu           sync.RWMutex
	schemaLoaded bool

	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	// Temporal buffer plus a predicate index for O(m) lookups.
	facts []Fact
	index map[string][]int
}

func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		facts: make([]Fact, 0, cfg.FactBufferLimit),
		index: make(map[string][]int),
		store: factstore.NewSimpleInMemoryStore(),
	}

	if cfg.Enable && cfg.SchemaPath != "" {
		if err := e.LoadSchema(cfg.SchemaPath); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// LoadSchema parses a Mangle schema file, analyzes it, and prepares the
// engine for evaluation.
func (e *Engine) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	sourceUnit, err := parse.Unit(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	// Stratification and safety checks happen here.
	programInfo, err := analysis.AnalyzeOneUnit(sourceUnit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.programInfo = programInfo
	e.schemaLoaded = true

	return nil
}

// AddRule adds a Mangle rule at runtime so callers can assert conditions
// over the workflow facts without restarting the server.
func (e *Engine) AddRule(ruleSource string) error {
	if !e.cfg.Enable {
		return nil
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(ruleSource)))
	if err != nil {
		return fmt.Errorf("parse rule: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existingDecls := make(map[ast.PredicateSym]ast.Decl)
	if e.programInfo != nil && e.programInfo.Decls != nil {
		for k, v := range e.programInfo.Decls {
			if v != nil {
				existingDecls[k] = *v
			}
		}
	}

	newProgramInfo, err := analysis.AnalyzeOneUnit(sourceUnit, existingDecls)
	if err != nil {
		return fmt.Errorf("analyze rule: %w", err)
	}

	if e.programInfo == nil {
		e.programInfo = newProgramInfo
	} else {
		for k, v := range newProgramInfo.Decls {
			e.programInfo.Decls[k] = v
		}
	}

	return nil
}

// AddFacts appends incoming facts to both the temporal buffer and the Mangle
// store, then re-evaluates the loaded program so derived predicates stay
// current.
func (e *Engine) AddFacts(ctx context.Context, facts []Fact) error {
	if !e.cfg.Enable {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	baseIdx := len(e.facts)
	e.facts = append(e.facts, facts...)
	if e.cfg.FactBufferLimit > 0 && len(e.facts) > e.cfg.FactBufferLimit {
		trimCount := len(e.facts) - e.cfg.FactBufferLimit
		e.facts = e.facts[trimCount:]
		e.rebuildIndex()
	} else {
		for i, f := range facts {
			e.index[f.Predicate] = append(e.index[f.Predicate], baseIdx+i)
		}
	}

	for _, f := range facts {
		atom, err := e.factToAtom(f)
		if err != nil {
			continue // skip malformed facts
		}
		e.store.Add(atom)
	}

	if e.schemaLoaded && e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}

	return nil
}

// Query executes a Mangle query with variable binding and returns all
// satisfying assignments. Falls back to a direct buffer search when the
// store lookup matches nothing, which handles arity drift between the schema
// and dynamically emitted facts.
func (e *Engine) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(sourceUnit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := sourceUnit.Clauses[0].Head

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if varArg, ok := arg.(ast.Variable); ok {
				result[varArg.Symbol] = e.convertConstant(atom.Args[i])
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	if len(results) == 0 {
		results = append(results, e.queryBufferDirect(queryAtom.Predicate.Symbol, queryAtom.Args)...)
	}

	return results, nil
}

func (e *Engine) queryBufferDirect(predicate string, queryArgs []ast.BaseTerm) []QueryResult {
	results := make([]QueryResult, 0)

	indices, exists := e.index[predicate]
	if !exists {
		return results
	}

	for _, idx := range indices {
		if idx < 0 || idx >= len(e.facts) {
			continue
		}
		f := e.facts[idx]

		if len(queryArgs) > 0 && len(f.Args) < len(queryArgs) {
			continue
		}

		result := make(QueryResult)
		matches := true

		for i, qArg := range queryArgs {
			if i >= len(f.Args) {
				break
			}
			if varArg, ok := qArg.(ast.Variable); ok {
				result[varArg.Symbol] = f.Args[i]
			} else if constArg, ok := qArg.(ast.Constant); ok {
				factVal := fmt.Sprintf("%v", f.Args[i])
				queryVal := e.convertConstant(constArg)
				if factVal != fmt.Sprintf("%v", queryVal) {
					matches = false
					break
				}
			}
		}

		if matches {
			results = append(results, result)
		}
	}

	return results
}

// Evaluate runs full program evaluation and returns derived facts for a
// specific predicate.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}

	arity := -1
	for sym := range e.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}

	predSym := ast.PredicateSym{Symbol: predicate, Arity: arity}
	var queryAtom ast.Atom
	if arity >= 0 {
		args := make([]ast.BaseTerm, arity)
		for i := 0; i < arity; i++ {
			args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
		}
		queryAtom = ast.Atom{Predicate: predSym, Args: args}
	} else {
		queryAtom = ast.Atom{Predicate: predSym}
	}

	facts := make([]Fact, 0)
	err := e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		fact, err := e.atomToFact(atom)
		if err != nil {
			return nil
		}
		facts = append(facts, fact)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}

	return facts, nil
}

// QueryTemporal returns facts for a predicate within a time window. Zero
// bounds are open.
func (e *Engine) QueryTemporal(predicate string, after, before time.Time) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]Fact, 0)
	indices, exists := e.index[predicate]
	if !exists {
		return results
	}

	for _, idx := range indices {
		if idx < 0 || idx >= len(e.facts) {
			continue
		}
		f := e.facts[idx]
		if (after.IsZero() || f.Timestamp.After(after)) &&
			(before.IsZero() || f.Timestamp.Before(before)) {
			results = append(results, f)
		}
	}

	return results
}

// FactsByPredicate returns matching facts via the index.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	indices, exists := e.index[predicate]
	if !exists {
		return []Fact{}
	}

	results := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(e.facts) {
			results = append(results, e.facts[idx])
		}
	}

	return results
}

// Facts returns a shallow copy of the buffered facts.
func (e *Engine) Facts() []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fact, len(e.facts))
	copy(out, e.facts)
	return out
}

// Ready reports whether the engine has a usable query context.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schemaLoaded || !e.cfg.Enable
}

func (e *Engine) factToAtom(f Fact) (ast.Atom, error) {
	predSym := ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)}

	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = e.toConstant(arg)
	}

	return ast.Atom{Predicate: predSym, Args: args}, nil
}

func (e *Engine) atomToFact(atom ast.Atom) (Fact, error) {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = e.convertConstant(arg)
	}

	return Fact{
		Predicate: atom.Predicate.Symbol,
		Args:      args,
		Timestamp: time.Now(),
	}, nil
}

func (e *Engine) toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func (e *Engine) convertConstant(c ast.BaseTerm) interface{} {
	if c == nil {
		return nil
	}

	switch term := c.(type) {
	case ast.Constant:
		if term.Type == ast.StringType {
			val, _ := term.StringValue()
			return val
		} else if term.Type == ast.NumberType {
			return term.NumberValue
		} else if term.Type == ast.Float64Type {
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}

func (e *Engine) rebuildIndex() {
	e.index = make(map[string][]int)
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
	}
}
