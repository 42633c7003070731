// Package run implements the run lifecycle state machine: room progression,
// card selection, the continue/exit decision, and death. It owns the only
// run-lifetime mutable state in the engine and is the one place player stats
// are reset.
//
// Ledger reconciliation is optimistic by design: local state advances on
// player input and the matching ledger transaction is submitted afterwards;
// a failed submit is surfaced on the snapshot without rolling local progress
// back. Retrying a failed advance belongs to the embedding caller's policy,
// not to this state machine.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aventurer-games/dungeon-core-go/internal/cards"
	"github.com/aventurer-games/dungeon-core-go/internal/combat"
	"github.com/aventurer-games/dungeon-core-go/internal/ledger"
	"github.com/aventurer-games/dungeon-core-go/internal/rng"
)

var (
	// ErrInvalidTransition is returned when an action is called outside its
	// valid state.
	ErrInvalidTransition = errors.New("invalid run transition")
	// ErrBusy is returned when a call arrives while another is still in
	// flight against the same session. Callers must serialize input; the
	// session enforces it rather than trusting them.
	ErrBusy = errors.New("run session busy")
)

// State is the run lifecycle state.
type State string

const (
	NotStarted       State = "not_started"
	InProgress       State = "in_progress"
	AwaitingDecision State = "awaiting_decision"
	Completed        State = "completed"
	Died             State = "died"
)

// PlayerStats is the mutable per-run stat block. Attack, defense, and max HP
// come from the caller-owned baseline; HP and gems live and die with the run.
type PlayerStats struct {
	HP      int `json:"hp"`
	MaxHP   int `json:"maxHp"`
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
	Gems    int `json:"gems"`
}

// MonsterPolicy selects how monster cards are resolved.
type MonsterPolicy string

const (
	// MonsterResolve applies the flat defense-vs-magnitude calculation from
	// the encounter resolver. This is the default path.
	MonsterResolve MonsterPolicy = "resolve"
	// MonsterCombat routes monsters the defense cannot fully block into the
	// combat engine; the card's printed ATK stays cosmetic.
	MonsterCombat MonsterPolicy = "combat"
)

// EndRunPolicy selects what happens when the closing ledger transaction of a
// finished run fails. Local terminal state never rolls back.
type EndRunPolicy string

const (
	// EndRunDiscard surfaces the error and forgets the submission.
	EndRunDiscard EndRunPolicy = "discard"
	// EndRunRetry retries the submission in-call a bounded number of times.
	EndRunRetry EndRunPolicy = "retry"
	// EndRunQueue keeps the failed submission pending; the caller triggers
	// ResubmitEndRun when it wants another attempt.
	EndRunQueue EndRunPolicy = "queue"
)

// Config configures a run session.
type Config struct {
	// Baseline is the externally owned character stat block. HP is reset to
	// MaxHP at run start.
	Baseline PlayerStats

	// Ledger submits run transactions. Nil disables reconciliation
	// entirely (useful for pure-logic tests).
	Ledger ledger.Client

	// Source drives card draws and combat rolls. Nil uses the default.
	Source rng.Source

	// MonsterPolicy defaults to MonsterResolve.
	MonsterPolicy MonsterPolicy

	// EndRunPolicy defaults to EndRunDiscard.
	EndRunPolicy EndRunPolicy

	// EndRunRetries bounds EndRunRetry attempts. Defaults to 2.
	EndRunRetries int

	// Recorder, when set, receives terminal runs. Failures are surfaced on
	// the snapshot but never block a transition.
	Recorder Recorder
}

// Recorder receives terminal run outcomes, e.g. the local history store.
type Recorder interface {
	RecordRun(survived bool, roomsReached, gemsCollected, monstersDefeated int) error
}

// pendingEnd is a queued close-run submission under EndRunQueue.
type pendingEnd struct {
	handle   ledger.RunHandle
	survived bool
	gems     int
}

// Session is one run from entry fee to completion or death. All methods are
// safe for concurrent use in the sense that overlapping calls are rejected
// with ErrBusy; the state machine itself is strictly sequential.
type Session struct {
	mu sync.Mutex

	cfg       Config
	generator *cards.Generator
	src       rng.Source

	state            State
	stats            PlayerStats
	currentRoom      int
	roomCards        [cards.RoomSize]cards.Card
	cardSelected     bool
	monstersThisRoom int
	monstersTotal    int
	handle           ledger.RunHandle
	combatSession    *combat.Session
	combatCard       int
	lastMessage      string
	ledgerErr        error
	pending          *pendingEnd
}

// Snapshot is the caller-facing view of a session after an operation. It is
// a value copy; mutating it has no effect on the session.
type Snapshot struct {
	State            State            `json:"state"`
	Stats            PlayerStats      `json:"stats"`
	CurrentRoom      int              `json:"currentRoom"`
	RoomCards        []cards.Card     `json:"roomCards,omitempty"`
	MonstersThisRoom int              `json:"monstersThisRoom"`
	MonstersTotal    int              `json:"monstersTotal"`
	RunHandle        ledger.RunHandle `json:"runHandle,omitempty"`
	Combat           *combat.Session  `json:"combat,omitempty"`
	Message          string           `json:"message,omitempty"`
	LedgerError      string           `json:"ledgerError,omitempty"`
	PendingEndRun    bool             `json:"pendingEndRun,omitempty"`
}

// NewSession creates a session in NotStarted with the given configuration.
func NewSession(cfg Config) *Session {
	if cfg.MonsterPolicy == "" {
		cfg.MonsterPolicy = MonsterResolve
	}
	if cfg.EndRunPolicy == "" {
		cfg.EndRunPolicy = EndRunDiscard
	}
	if cfg.EndRunRetries <= 0 {
		cfg.EndRunRetries = 2
	}
	src := cfg.Source
	if src == nil {
		src = rng.Default()
	}
	return &Session{
		cfg:       cfg,
		src:       src,
		generator: cards.NewGenerator(src),
		state:     NotStarted,
		stats:     cfg.Baseline,
	}
}

// acquire takes the session lock without blocking. A second player action
// arriving while one is in flight gets ErrBusy instead of queueing, which is
// the "reject concurrent calls" discipline the engine promises.
func (s *Session) acquire() error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

func (s *Session) release() {
	s.mu.Unlock()
}

// Start begins a run: resets stats from the baseline, generates room 1, and
// submits the entry-fee transaction. The local run starts even when the
// submit fails; the error rides on the snapshot and the return value.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.state != NotStarted && s.state != Completed && s.state != Died {
		return s.snapshot(), fmt.Errorf("%w: start while %s", ErrInvalidTransition, s.state)
	}

	s.stats = s.cfg.Baseline
	s.stats.HP = s.stats.MaxHP
	s.stats.Gems = 0
	s.currentRoom = 1
	s.monstersThisRoom = 0
	s.monstersTotal = 0
	s.cardSelected = false
	s.combatSession = nil
	s.pending = nil
	s.lastMessage = ""
	s.handle = ""
	s.ledgerErr = nil
	s.roomCards = s.generator.GenerateRoom()
	s.state = InProgress

	if s.cfg.Ledger != nil {
		handle, err := s.cfg.Ledger.SubmitStartRun(ctx, s.stats.MaxHP, s.stats.Attack)
		if err != nil {
			s.ledgerErr = fmt.Errorf("start run: %w", err)
			return s.snapshot(), s.ledgerErr
		}
		s.handle = handle
	}
	return s.snapshot(), nil
}

// SelectCard reveals and resolves the card at index. Valid only while
// InProgress with no combat pending, once per room, and only against a
// hidden card. A lethal resolution transitions straight to Died.
func (s *Session) SelectCard(ctx context.Context, index int) (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.state != InProgress {
		return s.snapshot(), fmt.Errorf("%w: select card while %s", ErrInvalidTransition, s.state)
	}
	if s.combatSession != nil {
		return s.snapshot(), fmt.Errorf("%w: select card during combat", ErrInvalidTransition)
	}
	if s.cardSelected {
		return s.snapshot(), fmt.Errorf("%w: a card was already selected this room", ErrInvalidTransition)
	}
	if index < 0 || index >= cards.RoomSize {
		return s.snapshot(), fmt.Errorf("%w: card index %d out of range", ErrInvalidTransition, index)
	}
	card := s.roomCards[index]
	if card.State != cards.Hidden {
		return s.snapshot(), fmt.Errorf("%w: card %d is %s", ErrInvalidTransition, index, card.State)
	}

	s.cardSelected = true
	s.roomCards[index].State = cards.Revealed

	if s.cfg.MonsterPolicy == MonsterCombat && card.Category == cards.Monster && s.stats.Defense < card.Magnitude {
		// The defense cannot fully block this one; combat decides it.
		monster := combat.NewMonster(s.src)
		s.combatSession = combat.Start(monster, combat.PlayerState{
			HP:      s.stats.HP,
			Attack:  s.stats.Attack,
			Defense: s.stats.Defense,
		}, s.src)
		s.combatCard = index
		s.lastMessage = fmt.Sprintf("A %s blocks your way.", monster.Name)
		return s.snapshot(), nil
	}

	res := cards.Resolve(card, s.stats.Defense, s.stats.HP, s.stats.MaxHP)
	s.applyResolution(index, res)
	return s.finishResolution(ctx)
}

// applyResolution folds a resolver outcome into the player stats and marks
// the card resolved.
func (s *Session) applyResolution(index int, res cards.Resolution) {
	s.roomCards[index].State = cards.Resolved
	s.stats.HP = res.NewHP
	s.stats.Gems += res.GemsDelta
	if res.Defeated {
		s.monstersThisRoom++
	}
	s.lastMessage = res.Message
}

// finishResolution runs the death check and the terminal/decision
// transition shared by the resolver and combat paths.
func (s *Session) finishResolution(ctx context.Context) (Snapshot, error) {
	if s.stats.HP <= 0 {
		s.stats.HP = 0
		s.state = Died
		s.monstersTotal += s.monstersThisRoom
		err := s.closeRun(ctx, false)
		return s.snapshot(), err
	}
	s.state = AwaitingDecision
	return s.snapshot(), nil
}

// PlayerAttack forwards the player's combat action. When the blow resolves
// combat, the outcome is applied to the run immediately.
func (s *Session) PlayerAttack(ctx context.Context) (Snapshot, error) {
	return s.combatAction(ctx, func(c *combat.Session) error { return c.PlayerAttack() })
}

// MonsterAttack forwards the monster's combat action.
func (s *Session) MonsterAttack(ctx context.Context) (Snapshot, error) {
	return s.combatAction(ctx, func(c *combat.Session) error { return c.MonsterAttack() })
}

func (s *Session) combatAction(ctx context.Context, action func(*combat.Session) error) (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.state != InProgress || s.combatSession == nil {
		return s.snapshot(), fmt.Errorf("%w: no combat in progress", ErrInvalidTransition)
	}
	if err := action(s.combatSession); err != nil {
		return s.snapshot(), err
	}
	if s.combatSession.Result == combat.NoResult {
		return s.snapshot(), nil
	}

	result, err := s.combatSession.End()
	if err != nil {
		return s.snapshot(), err
	}
	s.stats.HP = s.combatSession.Player.HP
	if result == combat.Victory {
		s.monstersThisRoom++
		s.lastMessage = fmt.Sprintf("You defeated %s.", s.combatSession.Monster.Name)
	} else {
		s.lastMessage = fmt.Sprintf("You were defeated by %s.", s.combatSession.Monster.Name)
	}
	s.roomCards[s.combatCard].State = cards.Resolved
	s.combatSession = nil
	return s.finishResolution(ctx)
}

// Continue folds the room's monster count into the run total, advances to a
// fresh room, and submits the room-advance transaction. Valid only in
// AwaitingDecision.
func (s *Session) Continue(ctx context.Context) (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.state != AwaitingDecision {
		return s.snapshot(), fmt.Errorf("%w: continue while %s", ErrInvalidTransition, s.state)
	}

	s.monstersTotal += s.monstersThisRoom
	s.monstersThisRoom = 0
	s.currentRoom++
	s.cardSelected = false
	s.roomCards = s.generator.GenerateRoom()
	s.state = InProgress
	s.lastMessage = ""

	if s.cfg.Ledger != nil && s.handle != "" {
		if err := s.cfg.Ledger.SubmitAdvanceRoom(ctx, s.handle, s.stats.HP); err != nil {
			s.ledgerErr = fmt.Errorf("advance room: %w", err)
			return s.snapshot(), s.ledgerErr
		}
		s.ledgerErr = nil
	}
	return s.snapshot(), nil
}

// Exit folds the room's monster count, completes the run, and submits the
// closing transaction. Valid only in AwaitingDecision.
func (s *Session) Exit(ctx context.Context) (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.state != AwaitingDecision {
		return s.snapshot(), fmt.Errorf("%w: exit while %s", ErrInvalidTransition, s.state)
	}

	s.monstersTotal += s.monstersThisRoom
	s.monstersThisRoom = 0
	s.state = Completed
	err := s.closeRun(ctx, true)
	return s.snapshot(), err
}

// Reset returns a terminal session to the NotStarted baseline. Attack,
// defense, and max HP survive; HP, gems, and room progress do not.
func (s *Session) Reset() (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.state != Completed && s.state != Died {
		return s.snapshot(), fmt.Errorf("%w: reset while %s", ErrInvalidTransition, s.state)
	}

	s.state = NotStarted
	s.stats = s.cfg.Baseline
	s.currentRoom = 0
	s.roomCards = [cards.RoomSize]cards.Card{}
	s.cardSelected = false
	s.monstersThisRoom = 0
	s.monstersTotal = 0
	s.handle = ""
	s.combatSession = nil
	s.lastMessage = ""
	s.ledgerErr = nil
	return s.snapshot(), nil
}

// ResubmitEndRun retries a close-run submission held back by EndRunQueue.
func (s *Session) ResubmitEndRun(ctx context.Context) (Snapshot, error) {
	if err := s.acquire(); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	if s.pending == nil {
		return s.snapshot(), fmt.Errorf("%w: no pending end-run submission", ErrInvalidTransition)
	}
	p := *s.pending
	if err := s.cfg.Ledger.SubmitEndRun(ctx, p.handle, p.survived, p.gems); err != nil {
		s.ledgerErr = fmt.Errorf("end run: %w", err)
		return s.snapshot(), s.ledgerErr
	}
	s.pending = nil
	s.ledgerErr = nil
	return s.snapshot(), nil
}

// closeRun submits the closing transaction under the configured policy and
// records the terminal run locally. Local state is already terminal when
// this runs and never rolls back.
func (s *Session) closeRun(ctx context.Context, survived bool) error {
	s.ledgerErr = nil
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.RecordRun(survived, s.currentRoom, s.stats.Gems, s.monstersTotal); err != nil {
			s.ledgerErr = fmt.Errorf("record run history: %w", err)
		}
	}

	if s.cfg.Ledger == nil || s.handle == "" {
		return nil
	}

	attempts := 1
	if s.cfg.EndRunPolicy == EndRunRetry {
		attempts += s.cfg.EndRunRetries
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = s.cfg.Ledger.SubmitEndRun(ctx, s.handle, survived, s.stats.Gems)
		if err == nil {
			return nil
		}
	}

	s.ledgerErr = fmt.Errorf("end run: %w", err)
	if s.cfg.EndRunPolicy == EndRunQueue {
		s.pending = &pendingEnd{handle: s.handle, survived: survived, gems: s.stats.Gems}
	}
	return s.ledgerErr
}

// Snapshot returns the current view without mutating anything.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:            s.state,
		Stats:            s.stats,
		CurrentRoom:      s.currentRoom,
		MonstersThisRoom: s.monstersThisRoom,
		MonstersTotal:    s.monstersTotal,
		RunHandle:        s.handle,
		Combat:           s.combatSession,
		Message:          s.lastMessage,
		PendingEndRun:    s.pending != nil,
	}
	if s.state == InProgress || s.state == AwaitingDecision {
		snap.RoomCards = append([]cards.Card(nil), s.roomCards[:]...)
	}
	if s.ledgerErr != nil {
		snap.LedgerError = s.ledgerErr.Error()
	}
	return snap
}
