package flow

// Match is the common interface behind the four match-table kinds.
// Evaluate returns the PC to jump to for subject, or elsePC (passed
// separately by the calling instruction) when nothing matches — Evaluate
// itself reports "no match" as (0, false) and lets the caller apply the
// else branch, keeping the interface symmetric across all four kinds.
type Match interface {
	Evaluate(subject string) (pc uint32, ok bool)
}
