// Package history archives completed runs locally. The ledger keeps the
// authoritative record; this store exists so the player can browse their
// own adventure log without scanning the event stream.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Store represents the archive interface
type Store interface {
	Close() error
	Migrate() error
	SaveRun(rec *RunRecord) error
	GetRun(id string) (*RunRecord, error)
	ListRuns(query RunsQuery) (*RunsList, error)
	Summary(address string) (*Summary, error)
}

// RunRecord is one archived run
type RunRecord struct {
	ID               uuid.UUID `json:"id"`
	Address          string    `json:"address"`
	Survived         bool      `json:"survived"`
	RoomsReached     int       `json:"roomsReached"`
	GemsCollected    int       `json:"gemsCollected"`
	MonstersDefeated int       `json:"monstersDefeated"`
	EndedAt          time.Time `json:"endedAt"`
}

// RunsQuery represents query parameters for listing runs
type RunsQuery struct {
	Address      string `json:"address,omitempty"`
	SurvivedOnly bool   `json:"survivedOnly,omitempty"`
	Page         int    `json:"page"`
	PerPage      int    `json:"perPage"`
}

// RunsList represents paginated runs response
type RunsList struct {
	Runs       []RunRecord `json:"runs"`
	TotalCount int         `json:"totalCount"`
	Page       int         `json:"page"`
	PerPage    int         `json:"perPage"`
	TotalPages int         `json:"totalPages"`
}

// Summary aggregates the archive for one address
type Summary struct {
	TotalRuns        int `json:"totalRuns"`
	SurvivedRuns     int `json:"survivedRuns"`
	BestRooms        int `json:"bestRooms"`
	BestGems         int `json:"bestGems"`
	TotalGems        int `json:"totalGems"`
	MonstersDefeated int `json:"monstersDefeated"`
}
