// Package cards implements the encounter generator and resolver: the card
// set a room presents and the pure stat arithmetic of resolving one card.
package cards

import (
	"fmt"

	"github.com/aventurer-games/dungeon-core-go/internal/rng"
)

// Category identifies what a card does when resolved.
type Category string

const (
	Monster  Category = "monster"
	Treasure Category = "treasure"
	Trap     Category = "trap"
	Potion   Category = "potion"
)

// RevealState tracks a card through its room lifecycle.
type RevealState string

const (
	Hidden   RevealState = "hidden"
	Revealed RevealState = "revealed"
	Resolved RevealState = "resolved"
)

// RoomSize is the number of cards presented per room.
const RoomSize = 4

// Category thresholds on a single uniform draw, cumulative smallest slice
// first: 10% trap, 10% potion, 30% treasure, 50% monster.
const (
	trapThreshold     = 0.10
	potionThreshold   = 0.20
	treasureThreshold = 0.50
)

// FullRestore is the potion magnitude sentinel meaning "restore to max HP".
const FullRestore = 999

// Magnitude tables. The monster values are the ATK printed on the card; once
// combat is engaged the combat engine's own monster table decides difficulty,
// so that number is display flavor only.
var (
	treasureRewards = []int{10, 20, 30}
	potionAmounts   = []int{1, FullRestore}
	monsterRatings  = []int{1, 2, 3}
)

// Card is one encounter card in a room.
type Card struct {
	ID        int         `json:"id"`
	Category  Category    `json:"category"`
	Magnitude int         `json:"magnitude"`
	State     RevealState `json:"state"`
}

// Generator draws encounter cards from an injected random source.
type Generator struct {
	src rng.Source
}

// NewGenerator creates a generator backed by src. A nil src falls back to
// the default source.
func NewGenerator(src rng.Source) *Generator {
	if src == nil {
		src = rng.Default()
	}
	return &Generator{src: src}
}

// GenerateRoom draws a full room of hidden cards.
func (g *Generator) GenerateRoom() [RoomSize]Card {
	var room [RoomSize]Card
	for i := range room {
		room[i] = g.GenerateCard(i)
	}
	return room
}

// GenerateCard draws a single hidden card. One uniform value picks the
// category; magnitude draws consume further values as needed.
func (g *Generator) GenerateCard(id int) Card {
	r := g.src.Float64()

	card := Card{ID: id, State: Hidden}
	switch {
	case r < trapThreshold:
		card.Category = Trap
		card.Magnitude = 1
	case r < potionThreshold:
		card.Category = Potion
		card.Magnitude = potionAmounts[rng.Pick(g.src, len(potionAmounts))]
	case r < treasureThreshold:
		card.Category = Treasure
		card.Magnitude = treasureRewards[rng.Pick(g.src, len(treasureRewards))]
	default:
		card.Category = Monster
		card.Magnitude = monsterRatings[rng.Pick(g.src, len(monsterRatings))]
	}
	return card
}

func (c Card) String() string {
	return fmt.Sprintf("card %d: %s(%d) %s", c.ID, c.Category, c.Magnitude, c.State)
}
