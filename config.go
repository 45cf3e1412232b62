package main

import "time"

// Demo host constants. The fog field itself is configured through
// fog.Config; these only shape the window, the player and the generated
// level.
const (
	windowScale       = 2
	defaultTPS        = 60.0
	moveSpeed         = 0.5 // world units per tick
	markerRadius      = 2   // texels
	playerSlot        = 0
	minResolution     = 64
	maxResolution     = 1024
	levelSeedOffset   = 1
	autoWalkSeedBase  = 2
	pgoRecordDuration = 15 * time.Second
)

// Colours used when compositing the fog over the level.
var (
	floorRGB  = [3]byte{200, 190, 160}
	wallRGB   = [3]byte{30, 40, 80}
	markerRGB = [3]byte{255, 0, 0}
)
