package main

import (
	"log"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// enableAutoWalk schedules scripted movement for a limited duration.
func (g *Game) enableAutoWalk(duration time.Duration) {
	g.autoWalk = true
	g.autoWalkDeadline = time.Now().Add(duration)
	g.autoWalkFrameCount = 0
}

// movementVector selects either manual or automatic movement on world X,Z.
func (g *Game) movementVector() (float64, float64) {
	if g.autoWalk {
		if time.Now().After(g.autoWalkDeadline) {
			g.autoWalk = false
			return 0, 0
		}
		return g.autoWalkVector()
	}
	return manualMovementVector()
}

// manualMovementVector returns WASD-based input movement scaled by moveSpeed.
// W moves towards -Z, which is up on screen.
func manualMovementVector() (float64, float64) {
	dx, dz := 0.0, 0.0
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		dz -= moveSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		dz += moveSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		dx -= moveSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		dx += moveSpeed
	}
	if dx != 0 && dz != 0 {
		dx *= 0.7071
		dz *= 0.7071
	}
	return dx, dz
}

// autoWalkVector returns a pseudo-random, collision-aware movement vector.
func (g *Game) autoWalkVector() (float64, float64) {
	limit := float64(g.ctrl.Config().WorldSize)
	for attempts := 0; attempts < 5; attempts++ {
		if g.autoWalkFrameCount <= 0 {
			g.randomizeAutoWalkDirection()
		}
		nextX := g.px + g.autoWalkDirX*moveSpeed
		nextZ := g.pz + g.autoWalkDirZ*moveSpeed
		if nextX > 0 && nextX < limit && nextZ > 0 && nextZ < limit && !g.isWall(nextX, nextZ) {
			g.autoWalkFrameCount--
			return g.autoWalkDirX * moveSpeed, g.autoWalkDirZ * moveSpeed
		}
		g.autoWalkFrameCount = 0
	}
	return 0, 0
}

// randomizeAutoWalkDirection chooses a new heading for automatic walking.
func (g *Game) randomizeAutoWalkDirection() {
	angle := g.autoWalkRand.Float64() * 2 * math.Pi
	g.autoWalkDirX = math.Cos(angle)
	g.autoWalkDirZ = math.Sin(angle)
	g.autoWalkFrameCount = 20 + g.autoWalkRand.Intn(50)
}

// handleDebugControls halves or doubles the fog resolution.
func (g *Game) handleDebugControls() {
	if !*debugFlag {
		return
	}
	res := g.ctrl.Config().Resolution
	if inpututil.IsKeyJustPressed(ebiten.KeyBracketLeft) {
		g.resize(res / 2)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBracketRight) {
		g.resize(res * 2)
	}
}

// handleSnapshotKey writes the final mask when F12 is pressed and -snapshot
// is set.
func (g *Game) handleSnapshotKey() {
	if *snapshotFlag == "" || !inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		return
	}
	if err := g.writeSnapshot(*snapshotFlag); err != nil {
		log.Printf("Snapshot failed: %v", err)
	}
}
