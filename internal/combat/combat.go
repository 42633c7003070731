// Package combat implements the turn-based monster combat engine. A combat
// Session is a small strict state machine: the monster acts first, turns
// alternate, and calling an action out of turn is an error, never a no-op.
package combat

import (
	"errors"
	"fmt"

	"github.com/aventurer-games/dungeon-core-go/internal/rng"
)

var (
	// ErrInvalidTransition is returned when an action is called outside its
	// valid turn or after combat has resolved.
	ErrInvalidTransition = errors.New("invalid combat transition")
	// ErrNotInCombat is returned when attack actions are called with no
	// active combat.
	ErrNotInCombat = errors.New("not in combat")
)

// Player hit chance is flat; the damage on a hit is the attack stat, no roll.
const playerHitChance = 0.8

// Turn says whose action is accepted next.
type Turn string

const (
	PlayerTurn  Turn = "player"
	MonsterTurn Turn = "monster"
)

// Result is the terminal outcome of a combat.
type Result string

const (
	NoResult Result = ""
	Victory  Result = "victory"
	Defeat   Result = "defeat"
)

// Monster is a combat opponent, created fresh per combat and never persisted.
type Monster struct {
	Name      string  `json:"name"`
	HP        int     `json:"hp"`
	MaxHP     int     `json:"maxHp"`
	DamageMin int     `json:"damageMin"`
	DamageMax int     `json:"damageMax"`
	HitChance float64 `json:"hitChance"`
}

type monsterSpec struct {
	name      string
	hpMin     int
	hpMax     int
	damageMin int
	damageMax int
	hitChance float64
}

// The weighted table combat difficulty comes from. The ATK printed on the
// encounter card has no bearing here.
var monsterTable = []monsterSpec{
	{name: "Cave Rat", hpMin: 2, hpMax: 3, damageMin: 1, damageMax: 2, hitChance: 0.7},
	{name: "Skeleton", hpMin: 3, hpMax: 4, damageMin: 1, damageMax: 3, hitChance: 0.75},
	{name: "Dungeon Ghoul", hpMin: 4, hpMax: 6, damageMin: 2, damageMax: 3, hitChance: 0.8},
}

// NewMonster draws a monster from the table and rolls its HP within the
// spec's range.
func NewMonster(src rng.Source) Monster {
	if src == nil {
		src = rng.Default()
	}
	spec := monsterTable[rng.Pick(src, len(monsterTable))]
	hp := rng.IntBetween(src, spec.hpMin, spec.hpMax)
	return Monster{
		Name:      spec.name,
		HP:        hp,
		MaxHP:     hp,
		DamageMin: spec.damageMin,
		DamageMax: spec.damageMax,
		HitChance: spec.hitChance,
	}
}

// LogKind classifies combat log entries so the display layer can style them
// without parsing messages.
type LogKind string

const (
	LogPlayerAttack  LogKind = "player_attack"
	LogMonsterAttack LogKind = "monster_attack"
	LogMiss          LogKind = "miss"
	LogVictory       LogKind = "victory"
	LogDefeat        LogKind = "defeat"
)

// LogEntry is one line of the combat log.
type LogEntry struct {
	Kind    LogKind `json:"kind"`
	Damage  int     `json:"damage"`
	Message string  `json:"message"`
}

// PlayerState is the slice of player stats combat needs.
type PlayerState struct {
	HP      int `json:"hp"`
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
}

// Session is a single combat from start to resolution.
type Session struct {
	InCombat bool        `json:"inCombat"`
	Monster  *Monster    `json:"monster,omitempty"`
	Player   PlayerState `json:"player"`
	Turn     Turn        `json:"turn"`
	Result   Result      `json:"result"`
	Log      []LogEntry  `json:"log"`

	src rng.Source
}

// Start begins combat against the given monster. The monster always acts
// first.
func Start(monster Monster, player PlayerState, src rng.Source) *Session {
	if src == nil {
		src = rng.Default()
	}
	return &Session{
		InCombat: true,
		Monster:  &monster,
		Player:   player,
		Turn:     MonsterTurn,
		Result:   NoResult,
		src:      src,
	}
}

// PlayerAttack executes the player's turn: a 0.8 hit roll, flat attack-stat
// damage on a hit. On victory the turn does not flip; combat is over.
func (s *Session) PlayerAttack() error {
	if err := s.checkTurn(PlayerTurn, "player attack"); err != nil {
		return err
	}

	if s.src.Float64() >= playerHitChance {
		s.append(LogEntry{Kind: LogMiss, Message: "Your attack missed."})
		s.Turn = MonsterTurn
		return nil
	}

	damage := s.Player.Attack
	s.Monster.HP -= damage
	if s.Monster.HP < 0 {
		s.Monster.HP = 0
	}
	s.append(LogEntry{
		Kind:    LogPlayerAttack,
		Damage:  damage,
		Message: fmt.Sprintf("You hit %s for %d damage.", s.Monster.Name, damage),
	})

	if s.Monster.HP == 0 {
		s.Result = Victory
		s.append(LogEntry{Kind: LogVictory, Message: fmt.Sprintf("You defeated %s.", s.Monster.Name)})
		return nil
	}
	s.Turn = MonsterTurn
	return nil
}

// MonsterAttack executes the monster's turn: a hit roll against the
// monster's hit chance, then uniform damage in its range mitigated by the
// player's defense, floored at zero.
func (s *Session) MonsterAttack() error {
	if err := s.checkTurn(MonsterTurn, "monster attack"); err != nil {
		return err
	}

	if s.src.Float64() >= s.Monster.HitChance {
		s.append(LogEntry{Kind: LogMiss, Message: fmt.Sprintf("%s missed.", s.Monster.Name)})
		s.Turn = PlayerTurn
		return nil
	}

	rolled := rng.IntBetween(s.src, s.Monster.DamageMin, s.Monster.DamageMax)
	damage := rolled - s.Player.Defense
	if damage < 0 {
		damage = 0
	}
	s.Player.HP -= damage
	if s.Player.HP < 0 {
		s.Player.HP = 0
	}
	s.append(LogEntry{
		Kind:    LogMonsterAttack,
		Damage:  damage,
		Message: fmt.Sprintf("%s hits you for %d damage (rolled %d, blocked %d).", s.Monster.Name, damage, rolled, rolled-damage),
	})

	if s.Player.HP == 0 {
		s.Result = Defeat
		s.append(LogEntry{Kind: LogDefeat, Message: fmt.Sprintf("You were defeated by %s.", s.Monster.Name)})
		return nil
	}
	s.Turn = PlayerTurn
	return nil
}

// End freezes the session after a result is set. The caller applies the
// final HP and outcome back into the run state.
func (s *Session) End() (Result, error) {
	if !s.InCombat {
		return NoResult, ErrNotInCombat
	}
	if s.Result == NoResult {
		return NoResult, fmt.Errorf("%w: end called before combat resolved", ErrInvalidTransition)
	}
	s.InCombat = false
	return s.Result, nil
}

func (s *Session) checkTurn(want Turn, action string) error {
	if s == nil || !s.InCombat || s.Monster == nil {
		return fmt.Errorf("%w: %s", ErrNotInCombat, action)
	}
	if s.Result != NoResult {
		return fmt.Errorf("%w: %s after combat resolved (%s)", ErrInvalidTransition, action, s.Result)
	}
	if s.Turn != want {
		return fmt.Errorf("%w: %s during %s turn", ErrInvalidTransition, action, s.Turn)
	}
	return nil
}

func (s *Session) append(e LogEntry) {
	s.Log = append(s.Log, e)
}
