package rls

import (
	"fmt"

	"github.com/cuemby/spacetime/internal/query"
)

// Rule is one RLS policy declared against TableName. Query is the rule's
// body: a LogicalPlan that, once alpha-renamed and grafted in place of a
// bare reference to TableName, restricts which rows of that table a
// non-owner subscriber may see (spec.md §4.7).
type Rule struct {
	TableName string
	Query     query.LogicalPlan
}

// RuleProvider looks up every RLS rule declared against a table.
type RuleProvider interface {
	RulesForTable(tableName string) []Rule
}

// CycleError reports a table whose RLS rule set resolves back into itself,
// directly or through an intermediate table (spec.md §4.7 step 2).
type CycleError struct {
	TableName string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("rls: cyclic view resolution through table %q", e.TableName)
}

// Resolve expands expr against the RLS rules declared on the tables it
// scans, returning one alternative LogicalPlan per applicable rule (a
// subscription evaluates the union of all of them). A subscriber who owns
// the database bypasses RLS entirely and gets expr back unchanged
// (spec.md §4.7 step 0).
func Resolve(expr query.LogicalPlan, isOwner bool, rules RuleProvider) ([]query.LogicalPlan, error) {
	if isOwner {
		return []query.LogicalPlan{expr}, nil
	}
	return resolveChain(expr, nil, rules)
}

// resolveChain finds the first table reference in p that carries RLS
// rules and fans it out into one expanded plan per rule, recursively
// resolving any views those rule bodies themselves reference. chain is the
// cons-list-equivalent of table names already expanded on this path; a
// rule set that resolves back through one of its own ancestors is
// rejected rather than expanded forever.
func resolveChain(p query.LogicalPlan, chain []string, rules RuleProvider) ([]query.LogicalPlan, error) {
	target, ok := firstRLSTarget(p, rules)
	if !ok {
		return []query.LogicalPlan{p}, nil
	}
	for _, seen := range chain {
		if seen == target {
			return nil, &CycleError{TableName: target}
		}
	}
	nextChain := append(append([]string{}, chain...), target)
	outerAlias := aliasOfTable(p, target)

	var out []query.LogicalPlan
	for i, rule := range rules.RulesForTable(target) {
		suffix := fmt.Sprintf("rls%d_%d", len(nextChain), i)
		bodyAlias := query.Alias(rule.Query)

		// Alpha-rename every alias the rule body binds except its own
		// return alias, so a rule that e.g. joins in "users" never
		// collides with a "users" already bound in the outer query. Then
		// rename the return alias itself to the alias the outer query
		// already addresses this table's rows under, so references above
		// the graft point keep working unmodified.
		renamed := alphaRenameExcept(rule.Query, bodyAlias, suffix)
		renamed = query.RenameAlias(renamed, bodyAlias, outerAlias)

		grafted, replaced := replaceTableRef(p, target, renamed)
		if !replaced {
			grafted = renamed
		}

		expanded, err := resolveChain(grafted, nextChain, rules)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// firstRLSTarget returns the table name of the first TableRef leaf found
// in left-to-right, left-deep scan order whose table carries RLS rules.
func firstRLSTarget(p query.LogicalPlan, rules RuleProvider) (string, bool) {
	switch n := p.(type) {
	case *query.TableRef:
		if len(rules.RulesForTable(n.TableName)) > 0 {
			return n.TableName, true
		}
		return "", false
	case *query.LogicalFilter:
		return firstRLSTarget(n.Input, rules)
	case *query.LogicalJoin:
		if t, ok := firstRLSTarget(n.Lhs, rules); ok {
			return t, true
		}
		return firstRLSTarget(n.Rhs, rules)
	default:
		return "", false
	}
}

// aliasOfTable returns the alias bound to the TableRef leaf named target
// within p.
func aliasOfTable(p query.LogicalPlan, target string) string {
	switch n := p.(type) {
	case *query.TableRef:
		if n.TableName == target {
			return n.Alias
		}
		return ""
	case *query.LogicalFilter:
		return aliasOfTable(n.Input, target)
	case *query.LogicalJoin:
		if a := aliasOfTable(n.Lhs, target); a != "" {
			return a
		}
		return aliasOfTable(n.Rhs, target)
	default:
		return ""
	}
}

// replaceTableRef returns a copy of p with its first TableRef leaf named
// target replaced by replacement, tunnelling through Filter and Join nodes
// so filter predicates and sibling joins already present in p survive the
// graft untouched.
func replaceTableRef(p query.LogicalPlan, target string, replacement query.LogicalPlan) (query.LogicalPlan, bool) {
	switch n := p.(type) {
	case *query.TableRef:
		if n.TableName == target {
			return replacement, true
		}
		return p, false
	case *query.LogicalFilter:
		inner, ok := replaceTableRef(n.Input, target, replacement)
		if !ok {
			return p, false
		}
		return &query.LogicalFilter{Input: inner, Expr: n.Expr}, true
	case *query.LogicalJoin:
		if inner, ok := replaceTableRef(n.Lhs, target, replacement); ok {
			cp := *n
			cp.Lhs = inner
			return &cp, true
		}
		if inner, ok := replaceTableRef(n.Rhs, target, replacement); ok {
			cp := *n
			cp.Rhs = inner
			return &cp, true
		}
		return p, false
	default:
		return p, false
	}
}

// alphaRenameExcept renames every alias bound in p to alias+"_"+suffix,
// except the except alias, which is left untouched for the caller to
// rename separately once it knows what outer scope to bind it into.
func alphaRenameExcept(p query.LogicalPlan, except, suffix string) query.LogicalPlan {
	for _, alias := range query.Aliases(p) {
		if alias == except {
			continue
		}
		p = query.RenameAlias(p, alias, alias+"_"+suffix)
	}
	return p
}
