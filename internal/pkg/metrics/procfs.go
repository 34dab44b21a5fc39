//go:build dev

package metrics

import (
	"fmt"
	"log"
	"time"

	"github.com/prometheus/procfs"
)

const procStatInterval = 500 * time.Millisecond

var (
	cpuSelfGauge     = NewGauge("cpu_self")
	memSelfGauge     = NewGauge("mem_self")
	threadsSelfGauge = NewGauge("threads_self")
	fdSelfGauge      = NewGauge("fd_self")
)

// InitProcStat samples this process from /proc until the returned stop function is called
func InitProcStat() (func(), error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("create procfs: %w", err)
	}

	proc, err := fs.Self()
	if err != nil {
		return nil, fmt.Errorf("open self: %w", err)
	}

	ticker := time.NewTicker(procStatInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			if err := sampleSelf(proc); err != nil {
				log.Printf("failed to get stat: %v", err)
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}, nil
}

func sampleSelf(proc procfs.Proc) error {
	stat, err := proc.Stat()
	if err != nil {
		return fmt.Errorf("get stat: %w", err)
	}

	cpuSelfGauge.Set(stat.CPUTime(), "total")
	memSelfGauge.Set(float64(stat.ResidentMemory()), "resident")
	memSelfGauge.Set(float64(stat.VirtualMemory()), "virtual")
	threadsSelfGauge.Set(float64(stat.NumThreads), "threads")

	fds, err := proc.FileDescriptorsLen()
	if err != nil {
		return fmt.Errorf("get file descriptors: %w", err)
	}
	fdSelfGauge.Set(float64(fds), "open")

	return nil
}
