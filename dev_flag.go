//go:build dev

package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/felixge/fgprof"
	"github.com/mazrean/splunkmcp/internal/pkg/metrics"
)

// DevFlag profiles a server session in dev builds. Profiles and the metrics CSV
// are written when the session ends, after stdin closed or a signal arrived.
type DevFlag struct {
	CPUProf string `kong:"optional,help='Write a CPU profile of the session to this file',type='path'"`
	MemProf string `kong:"optional,help='Write a heap profile at shutdown to this file',type='path'"`
	FgProf  string `kong:"optional,help='Write an fgprof profile (on and off CPU) of the session to this file',type='path'"`
	Metrics string `kong:"optional,help='Write Splunk API, search job and process samples as CSV to this file',type='path'"`

	stops []func() `kong:"-"`
}

func (d *DevFlag) StartProfiling() error {
	if d.CPUProf != "" {
		f, err := os.Create(d.CPUProf)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start CPU profile: %w", err)
		}
		d.stops = append(d.stops, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}

	if d.FgProf != "" {
		f, err := os.Create(d.FgProf)
		if err != nil {
			return fmt.Errorf("create fgprof profile: %w", err)
		}
		stop := fgprof.Start(f, fgprof.FormatPprof)
		d.stops = append(d.stops, func() {
			if err := stop(); err != nil {
				log.Printf("stop fgprof: %v", err)
			}
			f.Close()
		})
	}

	if d.Metrics != "" {
		stop, err := metrics.InitProcStat()
		if err != nil {
			return fmt.Errorf("start process sampling: %w", err)
		}
		d.stops = append(d.stops, stop, d.writeMetrics)
	}

	return nil
}

// StopProfiling ends every profile started by StartProfiling, then writes the heap profile
func (d *DevFlag) StopProfiling() {
	for _, stop := range d.stops {
		stop()
	}
	d.stops = nil

	if d.MemProf != "" {
		d.writeHeapProfile()
	}
}

func (d *DevFlag) writeMetrics() {
	f, err := os.Create(d.Metrics)
	if err != nil {
		log.Printf("create metrics file: %v", err)
		return
	}
	defer f.Close()

	if err := metrics.WriteMetrics(f); err != nil {
		log.Printf("write metrics: %v", err)
	}
}

func (d *DevFlag) writeHeapProfile() {
	f, err := os.Create(d.MemProf)
	if err != nil {
		log.Printf("create heap profile: %v", err)
		return
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Printf("write heap profile: %v", err)
	}
}
