package main

import (
	"log"
	"os"
	"runtime/pprof"
	"sync"
	"time"
)

// startDefaultPGORecording starts a CPU profile at path. The returned stop
// function may be called from any goroutine and more than once.
func startDefaultPGORecording(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	started := time.Now()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			pprof.StopCPUProfile()
			if err := f.Close(); err != nil {
				log.Printf("Closing %s failed: %v", path, err)
				return
			}
			log.Printf("Wrote %s (%s of fog updates)", path, time.Since(started).Round(time.Second))
		})
	}
	return stop, nil
}
