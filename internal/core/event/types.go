package event

// Engine events. Fields are plain values so the bus never pins world state.

// TileLoaded is emitted when a tile's payload has been applied.
type TileLoaded struct {
	X, Z    int
	Objects int
}

// TileFailed is emitted when a tile load failed. The tile stays a hole.
type TileFailed struct {
	X, Z   int
	Reason string
}

// ObjectDestroyed is emitted when the deletion drain destroyed an object.
type ObjectDestroyed struct {
	ID      uint64
	ModelID int32
	Effect  bool
}

// WeatherChanged is emitted when the weather state switches.
type WeatherChanged struct {
	From, To string
}
