package symbolic

import "sync"

const (
	DefaultLoopWindow        = 5
	DefaultLoopHistoryFactor = 4

	// WarningPotentialLoop prefixes the advisory warning added when the most
	// recent window of allowed actions repeats an earlier one.
	WarningPotentialLoop = "potential_loop_detected"
)

// SequenceMatcher decides whether two equal-length fingerprint windows count
// as a repeat.
type SequenceMatcher interface {
	Match(recent, earlier []string) bool
}

// SequenceMatcherFunc adapts a function to SequenceMatcher.
type SequenceMatcherFunc func(recent, earlier []string) bool

func (f SequenceMatcherFunc) Match(recent, earlier []string) bool { return f(recent, earlier) }

// ExactMatcher treats windows as a repeat only when every fingerprint is equal.
type ExactMatcher struct{}

func (ExactMatcher) Match(recent, earlier []string) bool {
	if len(recent) != len(earlier) {
		return false
	}
	for i := range recent {
		if recent[i] != earlier[i] {
			return false
		}
	}
	return true
}

// LoopDetector keeps a bounded history of action fingerprints and reports
// when the newest window repeats an earlier, non-overlapping one.
type LoopDetector struct {
	mu       sync.Mutex
	window   int
	capacity int
	history  []string
	matcher  SequenceMatcher
}

// NewLoopDetector returns a detector over window-length sequences retaining
// window*factor fingerprints. A window of zero or less disables detection.
func NewLoopDetector(window, factor int, matcher SequenceMatcher) *LoopDetector {
	if factor < 2 {
		factor = 2
	}
	if matcher == nil {
		matcher = ExactMatcher{}
	}
	d := &LoopDetector{window: window, matcher: matcher}
	if window > 0 {
		d.capacity = window * factor
	}
	return d
}

// Window returns the configured window length.
func (d *LoopDetector) Window() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

// Observe appends fingerprints and checks the newest window against earlier
// ones. It returns the repeated window when one is found. Nothing is checked
// when fingerprints is empty.
func (d *LoopDetector) Observe(fingerprints []string) ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.window <= 0 || len(fingerprints) == 0 {
		return nil, false
	}

	d.history = append(d.history, fingerprints...)
	if over := len(d.history) - d.capacity; over > 0 {
		d.history = append(d.history[:0:0], d.history[over:]...)
	}

	n := len(d.history)
	if n < 2*d.window {
		return nil, false
	}
	recent := d.history[n-d.window:]
	for start := n - 2*d.window; start >= 0; start-- {
		if d.matcher.Match(recent, d.history[start:start+d.window]) {
			out := make([]string, d.window)
			copy(out, recent)
			return out, true
		}
	}
	return nil, false
}

// History returns a copy of the retained fingerprints, oldest first.
func (d *LoopDetector) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.history))
	copy(out, d.history)
	return out
}

// Reset forgets all retained fingerprints.
func (d *LoopDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}
