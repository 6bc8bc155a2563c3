package triprule

import (
	"fmt"
	"sync"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// Rule is one named, independently enabled expression.
type Rule struct {
	Name    string
	Expr    string
	Enabled bool
	ast     Node
}

// Evaluator parses and evaluates trip rules over a DataSource. The caller
// raises the process-wide trip flag when Evaluate returns a matched rule.
type Evaluator struct {
	mu    sync.RWMutex
	ds    DataSource
	rules map[string]*Rule
}

// New binds an Evaluator to a DataSource.
func New(ds DataSource) *Evaluator {
	return &Evaluator{ds: ds, rules: make(map[string]*Rule)}
}

// AddRule parses expr and installs it as name, enabled by default. Rule
// add/update is transactional: a syntactically invalid expression is
// rejected and the previous rule under name, if any, is left intact.
func (e *Evaluator) AddRule(name, expr string) error {
	const op = "triprule.AddRule"
	ast, err := parse(expr)
	if err != nil {
		return errs.New(errs.KindParse, op, fmt.Errorf("rule %q: %w", name, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[name] = &Rule{Name: name, Expr: expr, Enabled: true, ast: ast}
	return nil
}

// RemoveRule deletes a rule; removing an unknown name is a no-op.
func (e *Evaluator) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, name)
}

// SetEnabled toggles a rule's enabled flag.
func (e *Evaluator) SetEnabled(name string, enabled bool) error {
	const op = "triprule.SetEnabled"
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[name]
	if !ok {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("no such rule %q", name))
	}
	r.Enabled = enabled
	return nil
}

// Evaluate returns the name of the first enabled rule whose expression is
// true. Iteration order is unspecified; callers must not depend on
// which rule is reported when more than one is true.
func (e *Evaluator) Evaluate() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		if r.ast.eval(e.ds) {
			return r.Name, true
		}
	}
	return "", false
}

// Rules returns a snapshot of the current rule set, for inspection/tests.
func (e *Evaluator) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}
