package symbolic

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// PredicateKind selects how a Predicate is evaluated.
type PredicateKind string

const (
	KindElementExists       PredicateKind = "element_exists"
	KindElementVisible      PredicateKind = "element_visible"
	KindElementEnabled      PredicateKind = "element_enabled"
	KindURLPattern          PredicateKind = "url_pattern"
	KindElementTextContains PredicateKind = "element_text_contains"
	KindElementCount        PredicateKind = "element_count"
	KindCustom              PredicateKind = "custom"
)

// Predicate is a named boolean test over page state. It carries no state of
// its own and can be re-evaluated against any snapshot.
//
// Target is the element id for element kinds, the evaluator name for custom
// predicates, and the URL regex for url_pattern when Pattern is empty.
// Pattern is the URL regex or the expected substring for text predicates.
type Predicate struct {
	Kind    PredicateKind `json:"kind" yaml:"kind"`
	Target  string        `json:"target,omitempty" yaml:"target,omitempty"`
	Pattern string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Count   *int          `json:"count,omitempty" yaml:"count,omitempty"`
}

// String renders the predicate as kind(target) for use in rejection reasons.
func (p Predicate) String() string {
	target := p.Target
	if p.Kind == KindURLPattern && p.Pattern != "" {
		target = p.Pattern
	}
	return fmt.Sprintf("%s(%s)", p.Kind, target)
}

func ElementExists(id string) Predicate  { return Predicate{Kind: KindElementExists, Target: id} }
func ElementVisible(id string) Predicate { return Predicate{Kind: KindElementVisible, Target: id} }
func ElementEnabled(id string) Predicate { return Predicate{Kind: KindElementEnabled, Target: id} }
func URLMatches(pattern string) Predicate {
	return Predicate{Kind: KindURLPattern, Pattern: pattern}
}
func TextContains(id, substr string) Predicate {
	return Predicate{Kind: KindElementTextContains, Target: id, Pattern: substr}
}
func ElementCountIs(id string, n int) Predicate {
	return Predicate{Kind: KindElementCount, Target: id, Count: &n}
}
func Custom(name string) Predicate { return Predicate{Kind: KindCustom, Target: name} }

// CustomEvaluator is a host-supplied predicate capability.
type CustomEvaluator func(state PageState, currentURL string) (bool, error)

// CustomResolver looks up custom evaluators by name at evaluation time.
type CustomResolver interface {
	Resolve(name string) (CustomEvaluator, bool)
}

// CustomRegistry is a map-backed CustomResolver.
type CustomRegistry map[string]CustomEvaluator

func (r CustomRegistry) Resolve(name string) (CustomEvaluator, bool) {
	fn, ok := r[name]
	return fn, ok && fn != nil
}

// Evaluator evaluates predicates. Every failure mode (missing element,
// malformed regex, unknown kind, unresolved capability) evaluates to false
// and is logged at warn level; Evaluate never returns an error.
type Evaluator struct {
	logger   *zap.Logger
	resolver CustomResolver

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
	invalid  map[string]error
}

// NewEvaluator creates an evaluator. resolver may be nil, in which case every
// custom predicate evaluates to false.
func NewEvaluator(logger *zap.Logger, resolver CustomResolver) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		logger:   logger.Named("predicate"),
		resolver: resolver,
		compiled: make(map[string]*regexp.Regexp),
		invalid:  make(map[string]error),
	}
}

// Evaluate reports whether p holds for state. currentURL overrides the
// state's own URL when non-empty.
func (e *Evaluator) Evaluate(p Predicate, state PageState, currentURL string) bool {
	if currentURL == "" && state != nil {
		currentURL = state.CurrentURL()
	}

	switch p.Kind {
	case KindURLPattern:
		return e.matchURL(p, currentURL)
	case KindCustom:
		return e.evaluateCustom(p, state, currentURL)
	case KindElementExists, KindElementVisible, KindElementEnabled,
		KindElementTextContains, KindElementCount:
		// handled below
	default:
		e.logger.Warn("Unknown predicate kind", zap.String("kind", string(p.Kind)), zap.String("target", p.Target))
		return false
	}

	if p.Target == "" {
		e.logger.Warn("Element predicate has no target", zap.String("kind", string(p.Kind)))
		return false
	}
	if state == nil {
		e.logger.Warn("No page state available for predicate", zap.Stringer("predicate", p))
		return false
	}

	var (
		ok  bool
		err error
	)
	switch p.Kind {
	case KindElementExists:
		ok, err = state.ElementExists(p.Target)
	case KindElementVisible:
		ok, err = state.ElementVisible(p.Target)
	case KindElementEnabled:
		ok, err = state.ElementEnabled(p.Target)
	case KindElementTextContains:
		var text string
		text, err = state.ElementText(p.Target)
		ok = err == nil && strings.Contains(text, p.Pattern)
	case KindElementCount:
		ok, err = e.countMatches(p, state)
	}
	if err != nil {
		e.logger.Warn("Predicate evaluation failed", zap.Stringer("predicate", p), zap.Error(err))
		return false
	}
	return ok
}

func (e *Evaluator) countMatches(p Predicate, state PageState) (bool, error) {
	var n int
	if counter, ok := state.(ElementCounter); ok {
		c, err := counter.ElementCount(p.Target)
		if err != nil {
			return false, err
		}
		n = c
	} else {
		exists, err := state.ElementExists(p.Target)
		if err != nil {
			return false, err
		}
		if exists {
			n = 1
		}
	}
	if p.Count != nil {
		return n == *p.Count, nil
	}
	return n > 0, nil
}

func (e *Evaluator) matchURL(p Predicate, currentURL string) bool {
	pattern := p.Pattern
	if pattern == "" {
		pattern = p.Target
	}
	if pattern == "" {
		e.logger.Warn("URL predicate has no pattern")
		return false
	}
	if currentURL == "" {
		return false
	}
	re, err := e.regex(pattern)
	if err != nil {
		e.logger.Warn("Invalid URL pattern", zap.String("pattern", pattern), zap.Error(err))
		return false
	}
	return re.MatchString(currentURL)
}

// regex compiles pattern anchored at the start of the URL and caches the
// outcome, including failures.
func (e *Evaluator) regex(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.compiled[pattern]; ok {
		return re, nil
	}
	if err, ok := e.invalid[pattern]; ok {
		return nil, err
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		e.invalid[pattern] = err
		return nil, err
	}
	e.compiled[pattern] = re
	return re, nil
}

func (e *Evaluator) evaluateCustom(p Predicate, state PageState, currentURL string) bool {
	if e.resolver == nil {
		e.logger.Warn("Custom predicate used without a resolver", zap.String("name", p.Target))
		return false
	}
	fn, ok := e.resolver.Resolve(p.Target)
	if !ok {
		e.logger.Warn("Custom predicate not resolvable", zap.String("name", p.Target))
		return false
	}
	result, err := fn(state, currentURL)
	if err != nil {
		e.logger.Warn("Custom predicate failed", zap.String("name", p.Target), zap.Error(err))
		return false
	}
	return result
}
