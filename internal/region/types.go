package region

// RegionID is a region's stable numeric id, assigned on creation and never
// reused within a generation (spec §3). Zero is reserved and never assigned
// to a live region; it marks a tombstoned metadata slot.
type RegionID uint64

// Info is a point-in-time snapshot of a region's placement, returned by
// Store.Info for diagnostics and by the vector layer when opening regions.
type Info struct {
	ID       RegionID
	Name     string
	Offset   uint64
	Length   uint64
	Reserved uint64
	TypeTag  uint16
	Version  uint16
}

// StoreStats summarizes the layout's accounting for tests asserting
// invariant 2 (spec §8) and for the regionctl CLI.
type StoreStats struct {
	RegionCount     int
	PlacedBytes     uint64
	LiveHoleBytes   uint64
	PendingHoleBytes uint64
	Tail            uint64
	FileSize        uint64
}
