package koncorde

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// node is an intermediate boolean tree built from the filter DSL.
type node struct {
	op       string // "and", "or", "not", "cond", "all"
	children []*node
	cond     Condition
}

// parse converts a raw filter body into a boolean tree. An empty or null
// body matches every document of the target collection.
func parse(body json.RawMessage) (*node, error) {
	if len(body) == 0 || string(body) == "null" {
		return &node{op: "all"}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	if len(obj) == 0 {
		return &node{op: "all"}, nil
	}
	if len(obj) > 1 {
		return nil, fmt.Errorf("invalid filter: a filter object must contain exactly one keyword, got %d", len(obj))
	}

	for keyword, arg := range obj {
		return parseKeyword(keyword, arg)
	}
	return nil, nil // unreachable
}

func parseKeyword(keyword string, arg json.RawMessage) (*node, error) {
	switch keyword {
	case "and", "or":
		var items []json.RawMessage
		if err := json.Unmarshal(arg, &items); err != nil {
			return nil, fmt.Errorf("invalid %q operand: expected an array: %w", keyword, err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("invalid %q operand: empty array", keyword)
		}
		n := &node{op: keyword}
		for _, item := range items {
			child, err := parse(item)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		}
		return n, nil

	case "not":
		child, err := parse(arg)
		if err != nil {
			return nil, err
		}
		return &node{op: "not", children: []*node{child}}, nil

	case "equals":
		field, value, err := singleFieldValue(keyword, arg)
		if err != nil {
			return nil, err
		}
		return condNode(Condition{Field: field, Op: OpEquals, Value: value}), nil

	case "exists":
		field, err := existsField(arg)
		if err != nil {
			return nil, err
		}
		return condNode(Condition{Field: field, Op: OpExists}), nil

	case "in":
		field, value, err := singleFieldValue(keyword, arg)
		if err != nil {
			return nil, err
		}
		values, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("invalid \"in\" operand: field %q must hold an array", field)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("invalid \"in\" operand: field %q holds an empty array", field)
		}
		return condNode(Condition{Field: field, Op: OpIn, Value: values}), nil

	case "range":
		return parseRange(arg)

	default:
		return nil, fmt.Errorf("unknown filter keyword %q", keyword)
	}
}

// parseRange expands {"range": {"age": {"gt": 25, "lte": 85}}} into one
// condition per bound, conjoined.
func parseRange(arg json.RawMessage) (*node, error) {
	var fields map[string]map[string]float64
	if err := json.Unmarshal(arg, &fields); err != nil {
		return nil, fmt.Errorf("invalid \"range\" operand: %w", err)
	}
	if len(fields) != 1 {
		return nil, fmt.Errorf("invalid \"range\" operand: expected exactly one field, got %d", len(fields))
	}

	for field, bounds := range fields {
		if len(bounds) == 0 {
			return nil, fmt.Errorf("invalid \"range\" operand: field %q has no bounds", field)
		}
		ops := make([]string, 0, len(bounds))
		for op := range bounds {
			switch op {
			case OpGt, OpGte, OpLt, OpLte:
				ops = append(ops, op)
			default:
				return nil, fmt.Errorf("invalid \"range\" bound %q on field %q", op, field)
			}
		}
		sort.Strings(ops)

		n := &node{op: "and"}
		for _, op := range ops {
			n.children = append(n.children, condNode(Condition{Field: field, Op: op, Value: bounds[op]}))
		}
		if len(n.children) == 1 {
			return n.children[0], nil
		}
		return n, nil
	}
	return nil, nil // unreachable
}

func condNode(c Condition) *node {
	return &node{op: "cond", cond: c}
}

func singleFieldValue(keyword string, arg json.RawMessage) (string, any, error) {
	var fields map[string]any
	if err := json.Unmarshal(arg, &fields); err != nil {
		return "", nil, fmt.Errorf("invalid %q operand: %w", keyword, err)
	}
	if len(fields) != 1 {
		return "", nil, fmt.Errorf("invalid %q operand: expected exactly one field, got %d", keyword, len(fields))
	}
	for field, value := range fields {
		return field, value, nil
	}
	return "", nil, nil // unreachable
}

func existsField(arg json.RawMessage) (string, error) {
	var field string
	if err := json.Unmarshal(arg, &field); err == nil {
		return field, nil
	}
	var obj struct {
		Field string `json:"field"`
	}
	if err := json.Unmarshal(arg, &obj); err != nil || obj.Field == "" {
		return "", fmt.Errorf("invalid \"exists\" operand: expected a field name")
	}
	return obj.Field, nil
}

// toDNF converts a boolean tree to disjunctive normal form. The result is a
// disjunction of minterms; an empty slice matches nothing, a single empty
// minterm matches everything.
func toDNF(n *node) []Minterm {
	switch n.op {
	case "all":
		return []Minterm{{}}
	case "cond":
		return []Minterm{{n.cond}}
	case "or":
		var out []Minterm
		for _, child := range n.children {
			out = append(out, toDNF(child)...)
		}
		return out
	case "and":
		out := []Minterm{{}}
		for _, child := range n.children {
			out = product(out, toDNF(child))
		}
		return out
	case "not":
		return negate(n.children[0])
	}
	return nil
}

// negate returns the DNF of the negation of a tree, applying De Morgan's
// laws down to the leaves.
func negate(n *node) []Minterm {
	switch n.op {
	case "all":
		return nil
	case "cond":
		c := n.cond
		c.Not = !c.Not
		return []Minterm{{c}}
	case "or":
		out := []Minterm{{}}
		for _, child := range n.children {
			out = product(out, negate(child))
		}
		return out
	case "and":
		var out []Minterm
		for _, child := range n.children {
			out = append(out, negate(child)...)
		}
		return out
	case "not":
		return toDNF(n.children[0])
	}
	return nil
}

func product(a, b []Minterm) []Minterm {
	out := make([]Minterm, 0, len(a)*len(b))
	for _, ma := range a {
		for _, mb := range b {
			merged := make(Minterm, 0, len(ma)+len(mb))
			merged = append(merged, ma...)
			merged = append(merged, mb...)
			out = append(out, merged)
		}
	}
	return out
}

// canonicalize orders conditions within each minterm, orders the minterms,
// and drops duplicates, so equivalent filters normalize to identical forms.
func canonicalize(minterms []Minterm) []Minterm {
	canon := make([]Minterm, 0, len(minterms))
	seen := make(map[string]struct{}, len(minterms))

	for _, m := range minterms {
		sorted := make(Minterm, 0, len(m))
		keys := make(map[string]struct{}, len(m))
		for _, c := range m {
			k := conditionKey(c)
			if _, dup := keys[k]; dup {
				continue
			}
			keys[k] = struct{}{}
			sorted = append(sorted, c)
		}
		sort.Slice(sorted, func(i, j int) bool {
			return conditionKey(sorted[i]) < conditionKey(sorted[j])
		})

		mk := mintermKey(sorted)
		if _, dup := seen[mk]; dup {
			continue
		}
		seen[mk] = struct{}{}
		canon = append(canon, sorted)
	}

	sort.Slice(canon, func(i, j int) bool {
		return mintermKey(canon[i]) < mintermKey(canon[j])
	})
	return canon
}

func conditionKey(c Condition) string {
	value, _ := json.Marshal(c.Value)
	not := "+"
	if c.Not {
		not = "-"
	}
	return c.Field + "\x00" + c.Op + "\x00" + not + "\x00" + string(value)
}

func mintermKey(m Minterm) string {
	keys := make([]string, len(m))
	for i, c := range m {
		keys[i] = conditionKey(c)
	}
	return strings.Join(keys, "\x01")
}

// filterID derives the canonical filter identifier from the normalized
// content scoped by index and collection.
func filterID(index, collection string, minterms []Minterm) string {
	canonical, _ := json.Marshal(minterms)

	h := blake3.New()
	h.Write([]byte(index))
	h.Write([]byte{0})
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write(canonical)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
