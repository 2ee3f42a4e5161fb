package swarm

// ConsensusResult is the outcome of a consensus round. Index is -1 when no
// option was selected.
type ConsensusResult struct {
	Index    int            `json:"index"`
	Option   string         `json:"option,omitempty"`
	Votes    map[string]int `json:"votes"`
	Tally    []int          `json:"tally"`
	Expected int            `json:"expected"`
	TimedOut bool           `json:"timed_out"`
	// Defaulted is set when no valid vote arrived and the configured default
	// was applied.
	Defaulted bool `json:"defaulted"`
	// Fallback is set when the result was produced without messaging.
	Fallback bool `json:"fallback"`
}

// Decided reports whether an option was selected.
func (r ConsensusResult) Decided() bool { return r.Index >= 0 }

// tally counts votes per option and picks the option with the most votes,
// ties going to the lower index. Out-of-range votes are ignored. With no
// valid votes, def is used when it names an option, otherwise -1.
func tally(options []string, votes map[string]int, def int) (index int, counts []int, defaulted bool) {
	counts = make([]int, len(options))
	total := 0
	for _, v := range votes {
		if v < 0 || v >= len(options) {
			continue
		}
		counts[v]++
		total++
	}
	if total == 0 {
		if def >= 0 && def < len(options) {
			return def, counts, true
		}
		return -1, counts, true
	}

	index = 0
	for i, c := range counts {
		if c > counts[index] {
			index = i
		}
	}
	return index, counts, false
}

func newConsensusResult(options []string, votes map[string]int, expected int, def int) ConsensusResult {
	idx, counts, defaulted := tally(options, votes, def)
	res := ConsensusResult{
		Index:     idx,
		Votes:     votes,
		Tally:     counts,
		Expected:  expected,
		Defaulted: defaulted,
	}
	if idx >= 0 {
		res.Option = options[idx]
	}
	return res
}
