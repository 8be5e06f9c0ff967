// Command spdifbridge bridges an IEC 60958 (S/PDIF) capture source,
// carrying either stereo PCM or an IEC 61937 AC-3 bitstream, to the
// local playback device, auto-detecting the format and continuously
// compensating for clock drift between the two devices.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jakemoroni/audio-async-loopback/internal/arbiter"
	"github.com/jakemoroni/audio-async-loopback/internal/config"
	"github.com/jakemoroni/audio-async-loopback/internal/device"
)

func usage() {
	fmt.Println("Usage: spdifbridge [input name] [latency microsec]")
	fmt.Println("       Latency is optional")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	inputName := os.Args[1]

	latencyMicros := 0
	if len(os.Args) >= 3 {
		v, err := strconv.Atoi(os.Args[2])
		if err != nil || v == 0 {
			log.Printf("invalid sink latency %q, using default", os.Args[2])
		} else {
			latencyMicros = v
		}
	}

	cfg := config.Default()

	capture, err := device.OpenCapture(inputName)
	if err != nil {
		log.Fatalf("could not open capture device: %v", err)
	}
	defer capture.Close()

	ar := arbiter.New(cfg, latencyMicros)
	defer ar.Close()

	chunk := make([]byte, cfg.InputChunkBytes)
	for {
		if err := capture.ReadChunk(chunk); err != nil {
			log.Fatalf("could not read sample chunk: %v", err)
		}
		ar.ProcessChunk(chunk)
	}
}
