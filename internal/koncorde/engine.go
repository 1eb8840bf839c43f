package koncorde

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine stores normalized filters and matches documents against them.
//
// Normalize is a pure function of its input: it never mutates engine state,
// so callers are free to run it without coordination. Store and Remove are
// idempotent per canonical id and safe for concurrent use.
type Engine struct {
	env *cel.Env

	mu      sync.RWMutex
	filters map[string]*storedFilter

	logger *slog.Logger
}

// storedFilter is a registered filter with one compiled program per minterm.
// The filter matches a document when any program evaluates to true.
type storedFilter struct {
	normalized *Normalized
	programs   []cel.Program
}

// NewEngine creates a filter engine.
func NewEngine(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{
		env:     env,
		filters: make(map[string]*storedFilter),
		logger:  logger.With("component", "koncorde"),
	}, nil
}

// Normalize canonicalizes a raw filter body into its disjunctive normal form
// and assigns the content-derived identifier. Equivalent filters targeting
// the same index and collection always produce the same id.
func (e *Engine) Normalize(ctx context.Context, index, collection string, body json.RawMessage) (*Normalized, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := parse(body)
	if err != nil {
		return nil, err
	}

	minterms := canonicalize(toDNF(tree))
	return &Normalized{
		Index:      index,
		Collection: collection,
		ID:         filterID(index, collection, minterms),
		Minterms:   minterms,
	}, nil
}

// Store registers a normalized filter for matching. Storing an id that is
// already registered only confirms the registration.
func (e *Engine) Store(normalized *Normalized) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.filters[normalized.ID]; exists {
		return nil
	}

	programs := make([]cel.Program, 0, len(normalized.Minterms))
	for _, m := range normalized.Minterms {
		prg, err := e.compileMinterm(m)
		if err != nil {
			return fmt.Errorf("failed to compile filter %s: %w", normalized.ID, err)
		}
		programs = append(programs, prg)
	}

	e.filters[normalized.ID] = &storedFilter{normalized: normalized, programs: programs}
	e.logger.Debug("Filter stored", "filterId", normalized.ID,
		"index", normalized.Index, "collection", normalized.Collection,
		"minterms", len(normalized.Minterms))
	return nil
}

// Remove releases a filter registration. Removing an unknown id is a no-op.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.filters, id)
	return nil
}

// Has reports whether a filter id is currently registered.
func (e *Engine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.filters[id]
	return ok
}

// FiltersCount returns the number of registered filters.
func (e *Engine) FiltersCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.filters)
}

// Test returns the ids of the registered filters on the given index and
// collection that match the document, sorted for determinism.
func (e *Engine) Test(index, collection string, doc map[string]any) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matched []string
	for id, f := range e.filters {
		if f.normalized.Index != index || f.normalized.Collection != collection {
			continue
		}
		if e.matches(f, doc) {
			matched = append(matched, id)
		}
	}
	sort.Strings(matched)
	return matched
}

func (e *Engine) matches(f *storedFilter, doc map[string]any) bool {
	for _, prg := range f.programs {
		out, _, err := prg.Eval(map[string]any{"doc": doc})
		if err != nil {
			// Missing fields surface as evaluation errors: not a match.
			continue
		}
		if result, ok := out.Value().(bool); ok && result {
			return true
		}
	}
	return false
}

// compileMinterm compiles the conjunction of a minterm's conditions into one
// CEL program. An empty minterm matches every document.
func (e *Engine) compileMinterm(m Minterm) (cel.Program, error) {
	expr := "true"
	if len(m) > 0 {
		parts := make([]string, 0, len(m))
		for _, c := range m {
			s, err := conditionToExpression(c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		expr = strings.Join(parts, " && ")
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}
	return prg, nil
}

// conditionToExpression converts one condition to a CEL expression string.
func conditionToExpression(c Condition) (string, error) {
	var expr string

	switch c.Op {
	case OpExists:
		expr = existsExpression(c.Field)
	case OpEquals, OpGt, OpGte, OpLt, OpLte, OpIn:
		valStr, err := formatValue(c.Value)
		if err != nil {
			return "", err
		}
		op, ok := celOperators[c.Op]
		if !ok {
			return "", fmt.Errorf("unsupported operator %q", c.Op)
		}
		expr = fmt.Sprintf("%s %s %s", fieldAccess(c.Field), op, valStr)
	default:
		return "", fmt.Errorf("unsupported operator %q", c.Op)
	}

	if c.Not {
		return fmt.Sprintf("!(%s)", expr), nil
	}
	return expr, nil
}

var celOperators = map[string]string{
	OpEquals: "==",
	OpGt:     ">",
	OpGte:    ">=",
	OpLt:     "<",
	OpLte:    "<=",
	OpIn:     "in",
}

// fieldAccess builds a CEL accessor for a possibly dotted field path.
func fieldAccess(field string) string {
	access := "doc"
	for _, part := range strings.Split(field, ".") {
		access += fmt.Sprintf("['%s']", escapeString(part))
	}
	return access
}

// existsExpression checks the presence of the last path segment inside its
// parent object.
func existsExpression(field string) string {
	parts := strings.Split(field, ".")
	parent := "doc"
	for _, part := range parts[:len(parts)-1] {
		parent += fmt.Sprintf("['%s']", escapeString(part))
	}
	return fmt.Sprintf("'%s' in %s", escapeString(parts[len(parts)-1]), parent)
}

// formatValue formats a value for use in a CEL expression.
func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("'%s'", escapeString(val)), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		// JSON numbers arrive as float64 on both the filter and the
		// document side. Emit a double literal so the comparison stays
		// same-typed.
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case nil:
		return "null", nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := formatValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ", ")), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// escapeString renders s as the body of a single-quoted CEL string literal.
// Control characters must be escaped too, or the generated expression fails
// to compile.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
