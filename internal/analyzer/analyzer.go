// Package analyzer statically inspects Python source for constructs that
// must never reach the execution sandbox. The check is purely structural:
// the code is parsed, never run.
//
// The denylist reduces risk but does not eliminate it. String and bytecode
// obfuscation, or escape primitives not on the list, will not be caught.
// Process-level isolation in the sandbox is the second layer; the two are
// complementary, and neither is sufficient alone.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-python/gpython/ast"
	"github.com/go-python/gpython/parser"
	"github.com/go-python/gpython/py"
	"github.com/rs/zerolog/log"
)

// Report is the outcome of one static analysis pass.
type Report struct {
	Safe       bool     `json:"safe"`
	Issues     []string `json:"issues"`
	Imports    []string `json:"imports"`
	Calls      []string `json:"calls"`
	Attributes []string `json:"attributes"`
	Complexity int      `json:"complexity_score"`
}

// Analyzer walks a Python AST and records every denylisted construct.
type Analyzer struct {
	denylist *Denylist
}

// New creates an Analyzer with the default denylist.
func New() *Analyzer {
	return &Analyzer{denylist: DefaultDenylist()}
}

// NewWithDenylist creates an Analyzer with a custom denylist.
func NewWithDenylist(d *Denylist) *Analyzer {
	return &Analyzer{denylist: d}
}

// Analyze parses source and reports every denylisted import, call,
// attribute access, and bare name reference. It never returns an error:
// unparseable input yields an unsafe report, and Safe is true iff zero
// issues were recorded.
func (a *Analyzer) Analyze(source string) (report Report) {
	// The parser can panic on pathological input; an analysis fault must
	// surface as an unsafe report, never as a crash.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("analyzer panic recovered")
			report = Report{
				Safe:   false,
				Issues: []string{fmt.Sprintf("Analysis error: %v", r)},
			}
		}
	}()

	tree, err := parser.ParseString(source, py.ExecMode)
	if err != nil {
		return Report{
			Safe:   false,
			Issues: []string{fmt.Sprintf("Syntax error: %v", err)},
		}
	}

	w := &walker{denylist: a.denylist}
	ast.Walk(tree, w.visit)

	return Report{
		Safe:       len(w.issues) == 0,
		Issues:     w.issues,
		Imports:    sortedKeys(w.imports),
		Calls:      sortedKeys(w.calls),
		Attributes: sortedKeys(w.attributes),
		Complexity: w.complexity,
	}
}

type walker struct {
	denylist   *Denylist
	issues     []string
	imports    map[string]struct{}
	calls      map[string]struct{}
	attributes map[string]struct{}
	complexity int
}

func (w *walker) visit(node ast.Ast) bool {
	switch n := node.(type) {
	case *ast.Import:
		for _, alias := range n.Names {
			w.checkImport(string(alias.Name))
		}
	case *ast.ImportFrom:
		module := string(n.Module)
		if module != "" {
			w.checkImport(module)
		}
		for _, alias := range n.Names {
			name := string(alias.Name)
			if w.denylist.Blocked(CategoryFunction, name) {
				w.flag("Dangerous function import: %s from %s", name, rootModule(module))
			}
		}
	case *ast.Call:
		w.checkCall(n)
	case *ast.Attribute:
		w.checkAttribute(string(n.Attr))
	case *ast.Name:
		if w.denylist.Blocked(CategoryFunction, string(n.Id)) {
			w.flag("Dangerous name access detected: %s", n.Id)
		}
	case *ast.If, *ast.While, *ast.For, *ast.Try, *ast.With:
		w.complexity++
	case *ast.FunctionDef:
		w.complexity += 2
	case *ast.ClassDef:
		w.complexity += 3
	}
	return true
}

func (w *walker) checkImport(dotted string) {
	module := rootModule(dotted)
	w.record(&w.imports, module)
	if w.denylist.Blocked(CategoryImport, module) {
		w.flag("Dangerous import detected: %s", module)
	}
}

func (w *walker) checkCall(call *ast.Call) {
	var name string
	switch fn := call.Func.(type) {
	case *ast.Name:
		name = string(fn.Id)
	case *ast.Attribute:
		name = string(fn.Attr)
	default:
		return
	}
	w.record(&w.calls, name)
	if w.denylist.Blocked(CategoryFunction, name) {
		w.flag("Dangerous function call detected: %s", name)
	}
}

func (w *walker) checkAttribute(attr string) {
	w.record(&w.attributes, attr)
	if w.denylist.Blocked(CategoryAttribute, attr) {
		w.flag("Dangerous attribute access detected: %s", attr)
	}
}

func (w *walker) flag(format string, args ...any) {
	w.issues = append(w.issues, fmt.Sprintf(format, args...))
}

func (w *walker) record(set *map[string]struct{}, name string) {
	if *set == nil {
		*set = make(map[string]struct{})
	}
	(*set)[name] = struct{}{}
}

// rootModule reduces a dotted module path to its first segment, the unit
// the denylist operates on ("os.path" is still "os").
func rootModule(dotted string) string {
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return dotted
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
