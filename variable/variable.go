// Package variable implements the hierarchical Variables scope and
// ${NAME}/${!expr} substitution grammar.
package variable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// Scope is a hierarchical name→string mapping. Names are canonicalized to
// upper-case. Reading a value resolves ${NAME} and ${!expr} references,
// recursively walking up the parent chain for unresolved names.
type Scope struct {
	parent   *Scope
	values   map[string]string
	readonly map[string]bool
}

// New creates a root scope with no parent.
func New() *Scope {
	return &Scope{values: map[string]string{}, readonly: map[string]bool{}}
}

// NewChild creates a scope whose lookups fall back to parent when a name
// is not defined locally.
func NewChild(parent *Scope) *Scope {
	return &Scope{parent: parent, values: map[string]string{}, readonly: map[string]bool{}}
}

func canon(name string) string { return strings.ToUpper(name) }

// Set stores a raw (unsubstituted) value for name. Returns an error if
// name is currently readonly.
func (s *Scope) Set(name, value string) error {
	n := canon(name)
	if s.readonly[n] {
		return nxerrors.Wrapf(nxerrors.ErrInternal, "variable %s is readonly", n)
	}
	s.values[n] = value
	return nil
}

// SetReadonlySet atomically replaces the set of readonly names, returning
// the previous set. Used to temporarily permit writes to normally
// readonly keys such as CFGFILE during configuration load.
func (s *Scope) SetReadonlySet(names []string) (previous []string) {
	for n := range s.readonly {
		previous = append(previous, n)
	}
	s.readonly = map[string]bool{}
	for _, n := range names {
		s.readonly[canon(n)] = true
	}
	return previous
}

// IsReadonly reports whether name is currently readonly in this scope.
func (s *Scope) IsReadonly(name string) bool {
	return s.readonly[canon(name)]
}

// rawLookup returns the unsubstituted value stored for name, walking up
// the parent chain, and whether it was found at all.
func (s *Scope) rawLookup(name string) (string, bool) {
	n := canon(name)
	if v, ok := s.values[n]; ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.rawLookup(n)
	}
	return "", false
}

// Get resolves name's value, recursively substituting ${...} references.
// An unknown name returns ("", false); substitution failures for unknown
// nested names leave the reference literal.
func (s *Scope) Get(name string) (string, bool) {
	raw, ok := s.rawLookup(name)
	if !ok {
		return "", false
	}
	resolved, err := s.subst(raw, map[string]bool{canon(name): true})
	if err != nil {
		return "", false
	}
	return resolved, true
}

// Subst resolves ${NAME}/${!expr} references in an arbitrary template
// string, not necessarily one stored under a variable name.
func (s *Scope) Subst(template string) (string, error) {
	return s.subst(template, map[string]bool{})
}

// subst walks the template replacing ${NAME} and ${!expr}. visiting
// tracks the in-progress resolution chain so a substitution cycle raises
// a recursion error instead of looping forever.
func (s *Scope) subst(template string, visiting map[string]bool) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		if template[i] == '$' && i+1 < len(template) && template[i+1] == '{' {
			end := matchBrace(template, i+1)
			if end < 0 {
				out.WriteByte(template[i])
				i++
				continue
			}
			inner := template[i+2 : end]
			replacement, consumed, err := s.resolveRef(inner, visiting)
			if err != nil {
				return "", err
			}
			if consumed {
				out.WriteString(replacement)
			} else {
				out.WriteString(template[i : end+1])
			}
			i = end + 1
			continue
		}
		out.WriteByte(template[i])
		i++
	}
	return out.String(), nil
}

// resolveRef handles the body of a single ${...} reference: either a bang
// expression ${!expr} or a name lookup ${NAME}.
func (s *Scope) resolveRef(inner string, visiting map[string]bool) (value string, consumed bool, err error) {
	if strings.HasPrefix(inner, "!") {
		result, err := evalExpr(strings.TrimSpace(inner[1:]), s, visiting)
		if err != nil {
			return "", false, err
		}
		return result, true, nil
	}

	name := canon(strings.TrimSpace(inner))
	if visiting[name] {
		return "", false, nxerrors.Wrapf(nxerrors.ErrInternal, "variable substitution cycle at %s", name)
	}
	raw, ok := s.rawLookup(name)
	if !ok {
		return "", false, nil // unresolved: caller keeps the literal ${NAME}
	}
	visiting[name] = true
	resolved, err := s.subst(raw, visiting)
	delete(visiting, name)
	if err != nil {
		return "", false, err
	}
	return resolved, true, nil
}

// matchBrace returns the index of the '}' matching the '{' at openIdx,
// or -1 if unmatched.
func matchBrace(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// evalExpr evaluates the narrow expression grammar permitted inside
// ${!expr}: a single variable reference, a quoted literal, or one of the
// arithmetic operators +,-,*,/ between two such operands. Nothing
// broader than this constrained substitution expression is supported.
func evalExpr(expr string, s *Scope, visiting map[string]bool) (string, error) {
	expr = strings.TrimSpace(expr)
	for _, op := range []byte{'+', '-', '*', '/'} {
		if idx := splitTopLevel(expr, op); idx >= 0 {
			lhs, err := evalOperand(strings.TrimSpace(expr[:idx]), s, visiting)
			if err != nil {
				return "", err
			}
			rhs, err := evalOperand(strings.TrimSpace(expr[idx+1:]), s, visiting)
			if err != nil {
				return "", err
			}
			lf, lerr := strconv.ParseFloat(lhs, 64)
			rf, rerr := strconv.ParseFloat(rhs, 64)
			if lerr == nil && rerr == nil {
				var res float64
				switch op {
				case '+':
					res = lf + rf
				case '-':
					res = lf - rf
				case '*':
					res = lf * rf
				case '/':
					if rf == 0 {
						return "", nxerrors.Wrapf(nxerrors.ErrInternal, "division by zero in expression %q", expr)
					}
					res = lf / rf
				}
				return formatNumber(res), nil
			}
			if op == '+' {
				return lhs + rhs, nil
			}
			return "", nxerrors.Wrapf(nxerrors.ErrInternal, "cannot apply %c to non-numeric operands in %q", op, expr)
		}
	}
	return evalOperand(expr, s, visiting)
}

// evalOperand resolves a single operand: a quoted string literal, or a
// bare name looked up and substituted in scope s.
func evalOperand(tok string, s *Scope, visiting map[string]bool) (string, error) {
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return tok[1 : len(tok)-1], nil
	}
	name := canon(tok)
	if visiting[name] {
		return "", nxerrors.Wrapf(nxerrors.ErrInternal, "variable substitution cycle at %s", name)
	}
	raw, ok := s.rawLookup(name)
	if !ok {
		return tok, nil
	}
	visiting[name] = true
	resolved, err := s.subst(raw, visiting)
	delete(visiting, name)
	return resolved, err
}

// splitTopLevel returns the index of the first occurrence of op not
// inside a quoted literal, or -1.
func splitTopLevel(s string, op byte) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case op:
			if !inQuote && i > 0 { // avoid treating a leading '-' as an operator
				return i
			}
		}
	}
	return -1
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
