package strategy

import (
	"context"
	"fmt"

	"github.com/aventurer-games/dungeon-core-go/internal/cards"
	"github.com/aventurer-games/dungeon-core-go/internal/combat"
	"github.com/aventurer-games/dungeon-core-go/internal/run"
)

// Decision strings the script's decide() may return.
const (
	DecisionContinue = "continue"
	DecisionExit     = "exit"
)

// CardView is the script-facing shape of one room card. Hidden cards show
// no category; the script picks on position and history alone.
type CardView struct {
	Index    int    `json:"index"`
	State    string `json:"state"`
	Category string `json:"category,omitempty"`
	Amount   int    `json:"amount,omitempty"`
}

// StateView is the script-facing shape of the run after a room resolves.
type StateView struct {
	Room     int    `json:"room"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"maxHp"`
	Gems     int    `json:"gems"`
	Monsters int    `json:"monsters"`
	Message  string `json:"message"`
}

// RunStats aggregates the outcome of a batch of scripted runs.
type RunStats struct {
	Runs       int `json:"runs"`
	Survived   int `json:"survived"`
	Died       int `json:"died"`
	TotalGems  int `json:"totalGems"`
	BestGems   int `json:"bestGems"`
	BestRooms  int `json:"bestRooms"`
	TotalRooms int `json:"totalRooms"`
}

// Runner drives run sessions with a strategy script. The same VM plays every
// run, so script state carries across runs until stop() is called.
type Runner struct {
	vm *VM

	// MaxRoomsPerRun aborts a run that the script refuses to exit.
	// Defaults to 1000.
	MaxRoomsPerRun int
}

// NewRunner creates a runner for a compiled strategy.
func NewRunner(vm *VM) *Runner {
	return &Runner{vm: vm, MaxRoomsPerRun: 1000}
}

// Play executes up to maxRuns runs against the session, stopping early when
// the script calls stop() or ctx is cancelled. The session must be in a
// startable state.
func (r *Runner) Play(ctx context.Context, session *run.Session, maxRuns int) (RunStats, error) {
	var stats RunStats
	for i := 0; i < maxRuns; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if vmStopped(r.vm) {
			return stats, nil
		}

		final, err := r.playOne(ctx, session)
		if err != nil {
			return stats, fmt.Errorf("run %d: %w", i+1, err)
		}

		stats.Runs++
		stats.TotalGems += final.Stats.Gems
		stats.TotalRooms += final.CurrentRoom
		if final.Stats.Gems > stats.BestGems {
			stats.BestGems = final.Stats.Gems
		}
		if final.CurrentRoom > stats.BestRooms {
			stats.BestRooms = final.CurrentRoom
		}
		if final.State == run.Completed {
			stats.Survived++
		} else {
			stats.Died++
		}

		if _, err := session.Reset(); err != nil {
			return stats, fmt.Errorf("run %d: reset: %w", i+1, err)
		}
	}
	return stats, nil
}

// playOne plays a single run to a terminal state and returns the final
// snapshot.
func (r *Runner) playOne(ctx context.Context, session *run.Session) (run.Snapshot, error) {
	snap, err := session.Start(ctx)
	if err != nil {
		return snap, fmt.Errorf("start: %w", err)
	}

	for rooms := 0; rooms < r.MaxRoomsPerRun; rooms++ {
		if err := ctx.Err(); err != nil {
			return snap, err
		}

		idx, err := r.vm.PickCard(roomView(snap.RoomCards))
		if err != nil {
			return snap, err
		}
		snap, err = session.SelectCard(ctx, idx)
		if err != nil {
			return snap, fmt.Errorf("select card %d: %w", idx, err)
		}

		snap, err = r.fight(ctx, session, snap)
		if err != nil {
			return snap, err
		}

		switch snap.State {
		case run.Died:
			return snap, nil
		case run.AwaitingDecision:
		default:
			return snap, fmt.Errorf("unexpected state %q after card resolution", snap.State)
		}

		choice, err := r.vm.Decide(stateView(snap))
		if err != nil {
			return snap, err
		}
		if choice == DecisionExit {
			return session.Exit(ctx)
		}
		snap, err = session.Continue(ctx)
		if err != nil {
			return snap, fmt.Errorf("continue: %w", err)
		}
	}
	// The room cap is a guard against a decide() that never exits.
	return session.Exit(ctx)
}

// fight plays out a combat encounter, if one is open. Attacking is the only
// move, so no script decision is involved; the turn order does the rest.
func (r *Runner) fight(ctx context.Context, session *run.Session, snap run.Snapshot) (run.Snapshot, error) {
	for snap.Combat != nil && snap.Combat.Result == combat.NoResult {
		var err error
		if snap.Combat.Turn == combat.PlayerTurn {
			snap, err = session.PlayerAttack(ctx)
		} else {
			snap, err = session.MonsterAttack(ctx)
		}
		if err != nil {
			return snap, fmt.Errorf("combat: %w", err)
		}
	}
	return snap, nil
}

func roomView(roomCards []cards.Card) []CardView {
	views := make([]CardView, len(roomCards))
	for i, c := range roomCards {
		v := CardView{Index: i, State: string(c.State)}
		if c.State != cards.Hidden {
			v.Category = string(c.Category)
			v.Amount = c.Magnitude
		}
		views[i] = v
	}
	return views
}

func stateView(snap run.Snapshot) StateView {
	return StateView{
		Room:     snap.CurrentRoom,
		HP:       snap.Stats.HP,
		MaxHP:    snap.Stats.MaxHP,
		Gems:     snap.Stats.Gems,
		Monsters: snap.MonstersTotal,
		Message:  snap.Message,
	}
}

func vmStopped(vm *VM) bool {
	return vm.IsStopRequested()
}
