package main

import (
	"image"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"

	"fogofwar/internal/fog"
	"fogofwar/internal/navmask"
)

// Game hosts the fog controller: it moves the player over the level and
// forwards every tick to the controller.
type Game struct {
	ctrl *fog.Controller

	// level is the navigation mask as loaded or generated; nav is level
	// resampled to the current fog resolution.
	level *image.Gray
	nav   *image.Gray

	px, pz float64

	fogTexels []byte
	pixels    []byte

	autoWalk           bool
	autoWalkDeadline   time.Time
	autoWalkRand       *rand.Rand
	autoWalkDirX       float64
	autoWalkDirZ       float64
	autoWalkFrameCount int

	lastUpdate time.Duration
}

// newGame tracks the player in the controller and places them at the
// centre of the world.
func newGame(ctrl *fog.Controller, level *image.Gray) *Game {
	cfg := ctrl.Config()
	g := &Game{
		ctrl:         ctrl,
		level:        level,
		nav:          navmask.Resample(level, cfg.Resolution),
		px:           float64(cfg.WorldSize) / 2,
		pz:           float64(cfg.WorldSize) / 2,
		autoWalkRand: rand.New(rand.NewSource(time.Now().UnixNano() + autoWalkSeedBase)),
	}
	ctrl.Track(playerSlot, fog.PositionFunc(g.playerPosition), int32(*sightRangeFlag))
	return g
}

func (g *Game) playerPosition() mgl32.Vec3 {
	return mgl32.Vec3{float32(g.px), 0, float32(g.pz)}
}

// worldToTexel maps a world X,Z position onto the current navigation mask.
func (g *Game) worldToTexel(x, z float64) (int, int) {
	off := g.ctrl.Offset()
	scale := float64(g.ctrl.Scale())
	return int(math.Floor((x - float64(off.X())) / scale)), int(math.Floor((z - float64(off.Z())) / scale))
}

func (g *Game) isWall(x, z float64) bool {
	tx, ty := g.worldToTexel(x, z)
	return navmask.IsBlocked(g.nav, tx, ty)
}

// Update moves the player and advances the fog clock by one tick.
func (g *Game) Update() error {
	dx, dz := g.movementVector()
	oldX, oldZ := g.px, g.pz
	limit := float64(g.ctrl.Config().WorldSize) - 1e-3
	g.px = math.Max(0, math.Min(limit, g.px+dx))
	g.pz = math.Max(0, math.Min(limit, g.pz+dz))
	if g.isWall(g.px, g.pz) {
		g.px, g.pz = oldX, oldZ
	}

	g.handleDebugControls()
	g.handleSnapshotKey()

	start := time.Now()
	if err := g.ctrl.OnFrame(1 / defaultTPS); err != nil {
		return err
	}
	g.lastUpdate = time.Since(start)
	return nil
}

// resize changes the fog resolution, resampling the level to match.
func (g *Game) resize(resolution int) {
	if resolution < minResolution || resolution > maxResolution {
		return
	}
	nav := navmask.Resample(g.level, resolution)
	if err := g.ctrl.Resize(resolution, nav); err != nil {
		log.Printf("Fog resize to %d failed: %v", resolution, err)
		return
	}
	g.nav = nav
	ebiten.SetWindowSize(resolution*windowScale, resolution*windowScale)
}
