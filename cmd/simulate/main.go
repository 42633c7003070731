// Command simulate plays scripted runs against an in-memory ledger and
// prints aggregate statistics. Useful for balancing the card tables and for
// exercising strategy scripts before pointing them at a real ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aventurer-games/dungeon-core-go/internal/ledger"
	"github.com/aventurer-games/dungeon-core-go/internal/run"
	"github.com/aventurer-games/dungeon-core-go/internal/strategy"
)

// defaultScript exits after banking any treasure and keeps going while
// healthy, a reasonable baseline strategy.
const defaultScript = `
function pickCard(room) {
	for (var i = 0; i < room.length; i++) {
		if (room[i].state === "hidden") return i;
	}
	return 0;
}

function decide(state) {
	if (state.hp <= 1) return "exit";
	if (state.gems >= 30) return "exit";
	return "continue";
}
`

func main() {
	runs := flag.Int("runs", 100, "number of runs to simulate")
	scriptPath := flag.String("script", "", "strategy script file (default: built-in baseline)")
	hp := flag.Int("hp", 4, "baseline max HP")
	atk := flag.Int("atk", 1, "baseline attack")
	def := flag.Int("def", 1, "baseline defense")
	combatMode := flag.Bool("combat", false, "route monsters through turn-based combat")
	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)

	source := defaultScript
	if *scriptPath != "" {
		raw, err := os.ReadFile(*scriptPath)
		if err != nil {
			logger.Fatalf("script_read_failed path=%s error=%v", *scriptPath, err)
		}
		source = string(raw)
	}

	vm := strategy.NewVM()
	if err := vm.Execute(source); err != nil {
		logger.Fatalf("script_compile_failed error=%v", err)
	}

	policy := run.MonsterResolve
	if *combatMode {
		policy = run.MonsterCombat
	}

	client := ledger.NewMemory(50)
	session := run.NewSession(run.Config{
		Baseline:      run.PlayerStats{HP: *hp, MaxHP: *hp, Attack: *atk, Defense: *def},
		Ledger:        client,
		MonsterPolicy: policy,
	})

	runner := strategy.NewRunner(vm)
	stats, err := runner.Play(context.Background(), session, *runs)
	if err != nil {
		logger.Printf("simulation_aborted completed=%d error=%v", stats.Runs, err)
	}

	fmt.Printf("runs:       %d\n", stats.Runs)
	fmt.Printf("survived:   %d\n", stats.Survived)
	fmt.Printf("died:       %d\n", stats.Died)
	if stats.Runs > 0 {
		fmt.Printf("survival:   %.1f%%\n", 100*float64(stats.Survived)/float64(stats.Runs))
		fmt.Printf("avg rooms:  %.2f\n", float64(stats.TotalRooms)/float64(stats.Runs))
		fmt.Printf("avg gems:   %.2f\n", float64(stats.TotalGems)/float64(stats.Runs))
	}
	fmt.Printf("best rooms: %d\n", stats.BestRooms)
	fmt.Printf("best gems:  %d\n", stats.BestGems)

	for _, entry := range vm.GetLogs() {
		fmt.Printf("script: %s\n", entry.Message)
	}
}
