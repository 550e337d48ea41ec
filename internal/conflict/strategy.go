// Package conflict decides which side's version of a file propagates when
// both sides modified the same logical file within one reconciliation
// window. A strategy is chosen once from configuration; reconciliation code
// never branches on strategy names.
package conflict

import (
	"fmt"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/pkg/types"
)

// Outcome is the result of resolving one conflict.
type Outcome int

const (
	// WinnerA propagates the Source A version and discards B's.
	WinnerA Outcome = iota
	// WinnerB propagates the Source B version and discards A's.
	WinnerB
	// KeepBoth renames the losing version and keeps it as a new,
	// unrelated entry instead of discarding it.
	KeepBoth
	// Unresolved leaves the entry in conflict status until an external
	// resolution call settles it.
	Unresolved
)

func (o Outcome) String() string {
	switch o {
	case WinnerA:
		return "winner_a"
	case WinnerB:
		return "winner_b"
	case KeepBoth:
		return "keep_both"
	default:
		return "unresolved"
	}
}

// Strategy resolves a conflict between the two sides' records of the same
// logical file. Given the same pair of records a strategy must always return
// the same outcome.
type Strategy interface {
	Name() string
	Resolve(a, b types.FileRecord) Outcome
}

// LatestWins propagates whichever side was modified later. Ties go to
// Source A so the outcome stays deterministic.
type LatestWins struct{}

func (LatestWins) Name() string { return config.ConflictLatestWins }

func (LatestWins) Resolve(a, b types.FileRecord) Outcome {
	if b.ModifiedAt.After(a.ModifiedAt) {
		return WinnerB
	}
	return WinnerA
}

// SourceWins always propagates Source A, unconditionally.
type SourceWins struct{}

func (SourceWins) Name() string { return config.ConflictSourceWins }

func (SourceWins) Resolve(a, b types.FileRecord) Outcome { return WinnerA }

// CounterpartWins always propagates Source B, unconditionally.
type CounterpartWins struct{}

func (CounterpartWins) Name() string { return config.ConflictCounterpartWins }

func (CounterpartWins) Resolve(a, b types.FileRecord) Outcome { return WinnerB }

// KeepBothStrategy keeps the later version under the original name and the
// earlier one as a renamed copy.
type KeepBothStrategy struct{}

func (KeepBothStrategy) Name() string { return config.ConflictKeepBoth }

func (KeepBothStrategy) Resolve(a, b types.FileRecord) Outcome { return KeepBoth }

// Manual never resolves automatically; the entry stays in conflict status
// until an external call settles it.
type Manual struct{}

func (Manual) Name() string { return config.ConflictManual }

func (Manual) Resolve(a, b types.FileRecord) Outcome { return Unresolved }

// FromName returns the strategy for a configured name.
func FromName(name string) (Strategy, error) {
	switch name {
	case config.ConflictLatestWins:
		return LatestWins{}, nil
	case config.ConflictSourceWins:
		return SourceWins{}, nil
	case config.ConflictCounterpartWins:
		return CounterpartWins{}, nil
	case config.ConflictKeepBoth:
		return KeepBothStrategy{}, nil
	case config.ConflictManual:
		return Manual{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict resolution strategy %q", name)
	}
}
