// Command dungeond serves the dungeon game core over JSON HTTP.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/aventurer-games/dungeon-core-go/internal/api"
	"github.com/aventurer-games/dungeon-core-go/internal/history"
	"github.com/aventurer-games/dungeon-core-go/internal/leaderboard"
	"github.com/aventurer-games/dungeon-core-go/internal/ledger"
	"github.com/aventurer-games/dungeon-core-go/internal/run"
)

type config struct {
	ListenAddr string `env:"DUNGEON_LISTEN_ADDR" envDefault:":8090"`

	// LedgerURL empty selects the in-memory ledger, for local play and demos.
	LedgerURL   string `env:"DUNGEON_LEDGER_URL"`
	WalletToken string `env:"DUNGEON_WALLET_TOKEN"`
	EntryFee    string `env:"DUNGEON_ENTRY_FEE"`

	HistoryPath string `env:"DUNGEON_HISTORY_PATH" envDefault:"dungeon-history.db"`
	Address     string `env:"DUNGEON_PLAYER_ADDRESS" envDefault:"wallet:local"`

	BaselineHP      int `env:"DUNGEON_BASELINE_HP" envDefault:"4"`
	BaselineAttack  int `env:"DUNGEON_BASELINE_ATK" envDefault:"1"`
	BaselineDefense int `env:"DUNGEON_BASELINE_DEF" envDefault:"1"`

	MonsterPolicy string `env:"DUNGEON_MONSTER_POLICY" envDefault:"resolve"`
	EndRunPolicy  string `env:"DUNGEON_END_RUN_POLICY" envDefault:"discard"`

	LeaderboardPageCap int `env:"DUNGEON_LEADERBOARD_PAGE_CAP" envDefault:"50"`
	LeaderboardTop     int `env:"DUNGEON_LEADERBOARD_TOP" envDefault:"10"`
}

func main() {
	logger := log.New(os.Stdout, "[dungeond] ", log.LstdFlags)

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatalf("config_parse_failed error=%v", err)
	}

	client, err := buildLedger(cfg)
	if err != nil {
		logger.Fatalf("ledger_setup_failed error=%v", err)
	}

	store, err := history.NewSQLiteStore(cfg.HistoryPath)
	if err != nil {
		logger.Fatalf("history_open_failed path=%s error=%v", cfg.HistoryPath, err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatalf("history_migrate_failed error=%v", err)
	}

	baseline := run.PlayerStats{
		HP:      cfg.BaselineHP,
		MaxHP:   cfg.BaselineHP,
		Attack:  cfg.BaselineAttack,
		Defense: cfg.BaselineDefense,
	}
	recorder := history.NewRecorder(store, cfg.Address)
	factory := func() *run.Session {
		return run.NewSession(run.Config{
			Baseline:      baseline,
			Ledger:        client,
			MonsterPolicy: run.MonsterPolicy(cfg.MonsterPolicy),
			EndRunPolicy:  run.EndRunPolicy(cfg.EndRunPolicy),
			Recorder:      recorder,
		})
	}

	boards := leaderboard.New(client, leaderboard.Config{
		PageCap: cfg.LeaderboardPageCap,
		Top:     cfg.LeaderboardTop,
	})

	server := api.NewServer(factory, boards, store)
	logger.Printf("server_listening addr=%s ledger=%s", cfg.ListenAddr, ledgerKind(cfg))
	if err := http.ListenAndServe(cfg.ListenAddr, server.Routes()); err != nil {
		logger.Fatalf("server_failed error=%v", err)
	}
}

func buildLedger(cfg config) (ledger.Client, error) {
	if cfg.LedgerURL == "" {
		return ledger.NewMemory(50), nil
	}
	lcfg := ledger.Config{BaseURL: cfg.LedgerURL, WalletToken: cfg.WalletToken}
	if cfg.EntryFee != "" {
		fee, err := decimal.NewFromString(cfg.EntryFee)
		if err != nil {
			return nil, fmt.Errorf("invalid entry fee %q: %w", cfg.EntryFee, err)
		}
		lcfg.EntryFee = fee
	}
	return ledger.NewHTTPClient(lcfg), nil
}

func ledgerKind(cfg config) string {
	if cfg.LedgerURL == "" {
		return "memory"
	}
	return cfg.LedgerURL
}
