package main

import "flag"

// Command-line flags. Zero values leave the matching fog.Config field at the
// value loaded from -config or the built-in default.
var (
	// configFlag points at an optional TOML file read before the overrides below.
	configFlag = flag.String("config", "", "TOML fog configuration file")

	resolutionFlag = flag.Int("resolution", 0, "fog mask resolution in texels (multiple of 8)")
	worldSizeFlag  = flag.Float64("world-size", 0, "world-space side length covered by the fog")
	temporalFlag   = flag.Float64("temporal", -1, "temporal blend amount per update (0-1)")
	intervalFlag   = flag.Float64("interval", -1, "minimum seconds between fog updates")

	// navMaskFlag loads a PNG, BMP or TGA navigation mask instead of generating walls.
	navMaskFlag = flag.String("nav-mask", "", "navigation mask image; walls are generated when empty")

	// backendFlag selects the compute device.
	backendFlag = flag.String("backend", "auto", "compute backend: auto, opencl or software")

	sightRangeFlag = flag.Int("sight-range", 24, "player sight range in world units")

	// debugFlag enables the overlay and the resolution hotkeys.
	debugFlag = flag.Bool("debug", false, "show FPS and fog overlay; [ and ] change resolution")

	// snapshotFlag writes the final mask as WebP on exit and on F12.
	snapshotFlag = flag.String("snapshot", "", "write the final fog mask to this WebP file")

	// recordDefaultPGO triggers a scripted walk to produce default.pgo.
	recordDefaultPGO = flag.Bool("record-default-pgo", false, "walk randomly for 15s while capturing default.pgo")
)
