package cards

import "fmt"

// Resolution is the structured outcome of resolving one card against the
// player's stats. The numeric fields are authoritative; Message is a plain
// display string for the adventure log and carries no styling markup.
type Resolution struct {
	Category  Category `json:"category"`
	NewHP     int      `json:"newHp"`
	GemsDelta int      `json:"gemsDelta"`
	HPLost    int      `json:"hpLost"`
	HPGained  int      `json:"hpGained"`
	Defeated  bool     `json:"defeated"`
	Message   string   `json:"message"`
}

// Resolve computes the effect of a card on the given stats. It is pure: no
// randomness, no clamping of NewHP below zero (the run layer owns the death
// check), and every branch produces a non-empty message.
func Resolve(card Card, defense, hp, maxHP int) Resolution {
	res := Resolution{Category: card.Category, NewHP: hp}

	switch card.Category {
	case Monster:
		if defense >= card.Magnitude {
			res.Defeated = true
			res.Message = fmt.Sprintf("You blocked the monster (ATK %d) with your defense.", card.Magnitude)
			return res
		}
		damage := card.Magnitude - defense
		res.NewHP = hp - damage
		res.HPLost = damage
		res.Message = fmt.Sprintf("The monster (ATK %d) broke through your defense. You lose %d HP.", card.Magnitude, damage)

	case Treasure:
		res.GemsDelta = card.Magnitude
		res.Message = fmt.Sprintf("You found %d gems.", card.Magnitude)

	case Trap:
		res.NewHP = hp - 1
		res.HPLost = 1
		res.Message = "A trap triggered. You lose 1 HP."

	case Potion:
		if card.Magnitude == FullRestore {
			res.HPGained = maxHP - hp
			res.NewHP = maxHP
			res.Message = fmt.Sprintf("A full restore potion. HP fully restored (+%d HP).", res.HPGained)
			return res
		}
		gained := card.Magnitude
		if hp+gained > maxHP {
			gained = maxHP - hp
		}
		res.HPGained = gained
		res.NewHP = hp + gained
		res.Message = fmt.Sprintf("A small potion. Restored %d HP.", gained)

	default:
		res.Message = fmt.Sprintf("Nothing happened (unknown card category %q).", card.Category)
	}

	return res
}
