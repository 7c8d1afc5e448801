// Package achievements tracks per-user progress against the fixed goal
// catalog and pays the one-time completion bonus through the ledger.
package achievements

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/ledger"
)

// Tracker records achievement progress. Progress lives inside the Account and
// is persisted with it; the tracker itself holds no state.
type Tracker struct {
	ledger *ledger.Store
	log    *zap.Logger
}

// New creates a Tracker over the given ledger.
func New(store *ledger.Store, log *zap.Logger) *Tracker {
	return &Tracker{ledger: store, log: log}
}

// Result describes the outcome of a progress update.
type Result struct {
	JustCompleted bool
	NewTotal      int64
	Def           domain.AchievementDef
	NewBalance    int64 // set only when JustCompleted (after the bonus credit)
}

// RecordProgress adds delta to the user's progress for the achievement.
// No-op once completed. Crossing the target flips completed exactly once,
// credits the fixed reward, and reports JustCompleted so the caller can
// notify the user. Progress may exceed the target; delta must not be
// negative.
func (t *Tracker) RecordProgress(userID, displayName string, id domain.AchievementID, delta int64) (Result, error) {
	def, ok := domain.AchievementByID(id)
	if !ok {
		return Result{}, fmt.Errorf("unknown achievement %q", id)
	}
	if delta < 0 {
		return Result{}, fmt.Errorf("achievement delta must not be negative, got %d", delta)
	}

	var justCompleted bool
	st := t.ledger.UpdateAchievement(userID, displayName, id, func(st *domain.AchievementState) {
		if st.Completed {
			return
		}
		st.Progress += delta
		if st.Progress >= def.Target {
			// The flip happens inside the ledger's critical section, so the
			// bonus below is paid at most once.
			st.Completed = true
			justCompleted = true
		}
	})

	res := Result{JustCompleted: justCompleted, NewTotal: st.Progress, Def: def}
	if !justCompleted {
		return res, nil
	}

	bal, err := t.ledger.Credit(userID, displayName, def.Reward)
	if err != nil {
		return res, fmt.Errorf("credit achievement bonus: %w", err)
	}
	res.NewBalance = bal
	t.log.Info("achievement completed",
		zap.String("user_id", userID),
		zap.String("achievement", string(id)),
		zap.Int64("reward", def.Reward),
		zap.Int64("balance", bal))
	return res, nil
}
