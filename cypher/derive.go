package cypher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/dusk-indust/norm/schema"
)

// Verb is the leading action of a derived method name.
type Verb int

const (
	VerbFind Verb = iota
	VerbCount
	VerbDelete
	VerbAvg
	VerbMax
	VerbMin
)

// Op is a comparison operator in a derived predicate. Equality is the
// default when a segment names no operator.
type Op int

const (
	OpEq Op = iota
	OpGT
	OpGTE
	OpLT
	OpLTE
)

func (o Op) symbol() string {
	switch o {
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	default:
		return "="
	}
}

// Connective joins two adjacent predicates.
type Connective int

const (
	And Connective = iota
	Or
)

// Predicate is one parsed (property, operator) segment. The bound argument
// is positional, in declaration order.
type Predicate struct {
	Property *schema.PropertyDescriptor
	Op       Op
}

// DerivedQuery is the parsed plan for a derived method request.
type DerivedQuery struct {
	Verb        Verb
	Aggregate   *schema.PropertyDescriptor // set for Avg/Max/Min
	Predicates  []Predicate
	Connectives []Connective // len(Predicates)-1 entries
}

// Scalar reports whether the plan projects a single scalar instead of
// entity rows.
func (dq *DerivedQuery) Scalar() bool {
	switch dq.Verb {
	case VerbCount, VerbAvg, VerbMax, VerbMin:
		return true
	}
	return false
}

// DerivationError reports an unparseable or mis-arity derived method
// request. It is fatal at the first invocation of that method.
type DerivationError struct {
	Name   string
	Reason string
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("cypher: derive %q: %s", e.Name, e.Reason)
}

// IsDerivation reports whether err is a query derivation error.
func IsDerivation(err error) bool {
	var e *DerivationError
	return errors.As(err, &e)
}

// verb tokens, matched as prefixes of the camelized name.
var verbs = []struct {
	token string
	verb  Verb
}{
	{"Find", VerbFind},
	{"Count", VerbCount},
	{"Delete", VerbDelete},
	{"Avg", VerbAvg},
	{"Max", VerbMax},
	{"Min", VerbMin},
}

// operator tokens, longest first so GreaterThanOrEqual wins over GreaterThan.
var operators = []struct {
	token string
	op    Op
}{
	{"GreaterThanOrEqual", OpGTE},
	{"LessThanOrEqual", OpLTE},
	{"GreaterThan", OpGT},
	{"LessThan", OpLT},
}

// Derive parses a derived method name against an entity's descriptors.
//
// Grammar: verb [aggregate-property] ["By" segment {("And"|"Or") segment}]
// where segment is a property name optionally followed by an operator token.
// Names may be given in CamelCase or snake_case; snake_case is camelized
// before tokenizing, and property matching is case-sensitive on the logical
// field name. argCount must equal the number of parsed segments.
func Derive(name string, d *schema.EntityDescriptor, argCount int) (*DerivedQuery, error) {
	camel := name
	if strings.Contains(camel, "_") {
		camel = inflect.Camelize(camel)
	}

	dq := &DerivedQuery{}
	rest := ""
	matched := false
	for _, v := range verbs {
		if strings.HasPrefix(camel, v.token) {
			dq.Verb = v.verb
			rest = camel[len(v.token):]
			matched = true
			break
		}
	}
	if !matched {
		return nil, &DerivationError{Name: name, Reason: "unknown verb"}
	}

	// Aggregation verbs name the projected property right after the verb.
	switch dq.Verb {
	case VerbAvg, VerbMax, VerbMin:
		prop, n := matchProperty(d, rest)
		if prop == nil {
			return nil, &DerivationError{Name: name,
				Reason: fmt.Sprintf("no aggregate property at %q", rest)}
		}
		dq.Aggregate = prop
		rest = rest[n:]
	}

	if rest != "" {
		var ok bool
		rest, ok = strings.CutPrefix(rest, "By")
		if !ok {
			return nil, &DerivationError{Name: name,
				Reason: fmt.Sprintf("expected \"By\" at %q", rest)}
		}
		if rest == "" {
			return nil, &DerivationError{Name: name, Reason: "expected a predicate after \"By\""}
		}
		for {
			prop, n := matchProperty(d, rest)
			if prop == nil {
				return nil, &DerivationError{Name: name,
					Reason: fmt.Sprintf("unknown property at %q", rest)}
			}
			rest = rest[n:]
			op := OpEq
			for _, o := range operators {
				if strings.HasPrefix(rest, o.token) {
					op = o.op
					rest = rest[len(o.token):]
					break
				}
			}
			dq.Predicates = append(dq.Predicates, Predicate{Property: prop, Op: op})
			if rest == "" {
				break
			}
			conn, n, ok := matchConnective(d, rest)
			if !ok {
				return nil, &DerivationError{Name: name,
					Reason: fmt.Sprintf("expected \"And\" or \"Or\" at %q", rest)}
			}
			dq.Connectives = append(dq.Connectives, conn)
			rest = rest[n:]
		}
	}

	if len(dq.Predicates) != argCount {
		return nil, &DerivationError{Name: name,
			Reason: fmt.Sprintf("predicate count %d does not match argument count %d",
				len(dq.Predicates), argCount)}
	}
	return dq, nil
}

// matchProperty finds the longest descriptor field name prefixing s.
func matchProperty(d *schema.EntityDescriptor, s string) (*schema.PropertyDescriptor, int) {
	var best *schema.PropertyDescriptor
	bestLen := 0
	for i := range d.Properties {
		name := d.Properties[i].Name
		if len(name) > bestLen && strings.HasPrefix(s, name) {
			best = &d.Properties[i]
			bestLen = len(name)
		}
	}
	return best, bestLen
}

// matchConnective consumes a leading And/Or, but only when the text after it
// begins a known property; this keeps property names that start with "And"
// or "Or" parseable.
func matchConnective(d *schema.EntityDescriptor, s string) (Connective, int, bool) {
	for _, c := range []struct {
		token string
		conn  Connective
	}{{"And", And}, {"Or", Or}} {
		if after, ok := strings.CutPrefix(s, c.token); ok {
			if p, _ := matchProperty(d, after); p != nil {
				return c.conn, len(c.token), true
			}
		}
	}
	return And, 0, false
}
