package history

import (
	"sync"

	"go.uber.org/zap"
)

// History is the History Manager: it owns the Conversation, an append-only
// sequence of Turns whose first element is always the system/persona turn.
type History struct {
	mu     sync.RWMutex
	turns  []Turn
	logger *zap.Logger
}

// New creates a Conversation holding a single system turn with the given content.
func New(system string, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		turns:  []Turn{NewTurn(RoleSystem, system)},
		logger: logger,
	}
}

// Restore rebuilds a Conversation from previously persisted turns. Stored system
// turns are discarded and replaced by a fresh system turn carrying system, so a
// persona change between sessions takes effect.
func Restore(system string, turns []Turn, logger *zap.Logger) *History {
	h := New(system, logger)
	for _, t := range turns {
		if t.Role == RoleSystem {
			continue
		}
		h.turns = append(h.turns, t)
	}
	return h
}

// Append adds turn to the end of the Conversation. It never fails.
func (h *History) Append(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// System returns the system/persona turn.
func (h *History) System() Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.turns[0]
}

// SetSystem replaces the system turn with a new one carrying content.
func (h *History) SetSystem(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[0] = NewTurn(RoleSystem, content)
}

// Len returns the number of turns including the system turn.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of the whole Conversation in insertion order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Size returns the estimated size of the whole Conversation.
func (h *History) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, t := range h.turns {
		total += t.Size()
	}
	return total
}

// Clear drops every turn except the system turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:1:1]
}

// Budgeted returns the system turn followed by the longest contiguous suffix of
// the remaining turns whose cumulative estimated size, system turn included,
// fits in maxSize. The most recent turn is always included even when it alone
// overflows the budget, so the cap is soft. Turns are never reordered or cut.
func (h *History) Budgeted(maxSize int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := h.suffixStart(maxSize)

	out := make([]Turn, 0, 1+len(h.turns)-start)
	out = append(out, h.turns[0])
	out = append(out, h.turns[start:]...)

	if dropped := start - 1; dropped > 0 {
		h.logger.Debug("older context dropped from request",
			zap.Int("dropped_turns", dropped),
			zap.Int("kept_turns", len(out)),
			zap.Int("budget", maxSize),
		)
	}
	return out
}

// Evict permanently removes the turns Budgeted(maxSize) would leave out and
// returns how many were removed. The system turn is never evicted.
func (h *History) Evict(maxSize int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.suffixStart(maxSize)
	dropped := start - 1
	if dropped <= 0 {
		return 0
	}

	kept := make([]Turn, 0, 1+len(h.turns)-start)
	kept = append(kept, h.turns[0])
	kept = append(kept, h.turns[start:]...)
	h.turns = kept

	h.logger.Info("evicted oldest turns",
		zap.Int("evicted", dropped),
		zap.Int("remaining", len(h.turns)),
	)
	return dropped
}

// suffixStart returns the index of the first non-system turn that belongs to the
// budgeted suffix. The caller must hold the lock.
func (h *History) suffixStart(maxSize int) int {
	last := len(h.turns) - 1
	total := h.turns[0].Size()
	start := len(h.turns)

	for i := last; i >= 1; i-- {
		size := h.turns[i].Size()
		if i != last && total+size > maxSize {
			break
		}
		total += size
		start = i
	}
	return start
}
