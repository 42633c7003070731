package history

// Recorder adapts a Store to the run engine's completion hook. Each
// recorded run is stamped with the configured wallet address.
type Recorder struct {
	store   Store
	address string
}

// NewRecorder creates a recorder writing to store on behalf of address.
func NewRecorder(store Store, address string) *Recorder {
	return &Recorder{store: store, address: address}
}

// RecordRun archives one completed run.
func (r *Recorder) RecordRun(survived bool, roomsReached, gemsCollected, monstersDefeated int) error {
	return r.store.SaveRun(&RunRecord{
		Address:          r.address,
		Survived:         survived,
		RoomsReached:     roomsReached,
		GemsCollected:    gemsCollected,
		MonstersDefeated: monstersDefeated,
	})
}
