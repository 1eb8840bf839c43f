// Package koncorde is the filter-matching engine: it canonicalizes filter
// expressions into a normalized boolean form with a content-derived
// identifier, registers them for matching, and performs live
// document-to-filter matching at publish time.
package koncorde

// Condition is an atomic comparison inside a minterm.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
	Not   bool   `json:"not,omitempty"`
}

// Comparison operators produced by normalization.
const (
	OpEquals = "eq"
	OpExists = "exists"
	OpIn     = "in"
	OpGt     = "gt"
	OpGte    = "gte"
	OpLt     = "lt"
	OpLte    = "lte"
)

// Minterm is one conjunctive group of a filter in disjunctive normal form:
// the filter matches a document when all conditions of at least one minterm
// hold. An empty minterm matches every document.
type Minterm []Condition

// Normalized is the canonical form of a filter. ID is derived from the
// normalized content scoped by index and collection: identical filters always
// yield the same id, globally.
type Normalized struct {
	Index      string    `json:"index"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Minterms   []Minterm `json:"minterms"`
}
