package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"math/rand"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"

	"fogofwar/internal/fog"
	"fogofwar/internal/gpu"
	"fogofwar/internal/navmask"
)

// lightHeight is the world Y of the fog projector. It has no effect on the
// mask; it only keeps the light above the level.
const lightHeight = 50

func main() {
	flag.Parse()
	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Fog configuration invalid: %v", err)
	}
	level, err := loadLevel(cfg.Resolution)
	if err != nil {
		log.Fatalf("Navigation mask unavailable: %v", err)
	}
	dev, err := openDevice(*backendFlag)
	if err != nil {
		log.Fatalf("Compute device initialization failed: %v", err)
	}
	log.Printf("Compute backend enabled (device: %s)", dev.Name())

	half := cfg.WorldSize / 2
	light := &fog.Light{
		Type:     fog.DirectionalLight,
		Position: mgl32.Vec3{half, lightHeight, half},
		Rotation: fog.DownwardRotation(),
	}
	ctrl, err := fog.NewController(dev, cfg, navmask.Resample(level, cfg.Resolution), light)
	if err != nil {
		dev.Release()
		log.Fatalf("Fog of war setup failed: %v", err)
	}

	g := newGame(ctrl, level)

	var stopPGO func()
	if *recordDefaultPGO {
		stop, err := startDefaultPGORecording("default.pgo")
		if err != nil {
			log.Printf("PGO recording disabled: %v", err)
		} else {
			stopPGO = stop
			g.enableAutoWalk(pgoRecordDuration)
			time.AfterFunc(pgoRecordDuration, stop)
			log.Printf("Recording default.pgo for %s", pgoRecordDuration)
		}
	}

	ebiten.SetTPS(int(defaultTPS))
	ebiten.SetWindowSize(cfg.Resolution*windowScale, cfg.Resolution*windowScale)
	ebiten.SetWindowTitle("Fog of War")
	runErr := ebiten.RunGame(g)

	if stopPGO != nil {
		stopPGO()
	}
	if *snapshotFlag != "" {
		if err := g.writeSnapshot(*snapshotFlag); err != nil {
			log.Printf("Snapshot failed: %v", err)
		} else {
			log.Printf("Wrote %s", *snapshotFlag)
		}
	}
	ctrl.OnShutdown()
	dev.Release()
	if runErr != nil {
		log.Fatal(runErr)
	}
}

// loadConfig reads -config, if any, and applies the flag overrides.
func loadConfig() (fog.Config, error) {
	cfg := fog.DefaultConfig()
	if *configFlag != "" {
		var err error
		if cfg, err = fog.LoadConfig(*configFlag); err != nil {
			return cfg, err
		}
	}
	if *resolutionFlag > 0 {
		cfg.Resolution = *resolutionFlag
	}
	if *worldSizeFlag > 0 {
		cfg.WorldSize = float32(*worldSizeFlag)
	}
	if *temporalFlag >= 0 {
		cfg.TemporalAmount = float32(*temporalFlag)
	}
	if *intervalFlag >= 0 {
		cfg.UpdateInterval = *intervalFlag
	}
	return cfg, cfg.Validate()
}

// loadLevel loads -nav-mask or generates a walled level at resolution.
func loadLevel(resolution int) (*image.Gray, error) {
	if *navMaskFlag != "" {
		m, err := navmask.Load(*navMaskFlag)
		if err != nil {
			return nil, err
		}
		if b := m.Bounds(); b.Dx() != b.Dy() {
			return nil, fmt.Errorf("navigation mask %s is %dx%d, want a square", *navMaskFlag, b.Dx(), b.Dy())
		}
		return m, nil
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + levelSeedOffset))
	return navmask.Generate(resolution, rng, navmask.DefaultWallOptions(resolution)), nil
}

// openDevice picks the compute backend. auto prefers OpenCL and falls back
// to the CPU.
func openDevice(backend string) (gpu.Device, error) {
	switch backend {
	case "opencl":
		return gpu.NewOpenCLDevice(fog.OpenCLProgram())
	case "software":
		return gpu.NewSoftwareDevice(fog.SoftwareProgram()), nil
	case "auto":
		dev, err := gpu.NewOpenCLDevice(fog.OpenCLProgram())
		if err == nil {
			return dev, nil
		}
		log.Printf("OpenCL unavailable, using software backend: %v", err)
		return gpu.NewSoftwareDevice(fog.SoftwareProgram()), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}
