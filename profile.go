package main

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// This file is a reduced adaptation of https://github.com/zeromicro/go-zero
// @copyright original authors.

const (
	// DefaultMemProfileRate is the default memory profiling rate.
	// See also http://golang.org/pkg/runtime/#pkg-variables
	DefaultMemProfileRate = 4096

	timeFormat       = "20060102_150405"
	goroutineProfile = "goroutine"
	debugLevel       = 2
)

// started is non zero if a profile is running.
var started uint32

// Profiler represents an active profiling session.
type Profiler struct {
	dataDir string

	// closers holds cleanup functions that run after each profile
	closers []func()

	// stopped records if a call to Stop has been made
	stopped uint32
}

// StartProfiler begins cpu, memory and block profiling into `dataDir`.
// Returns nil when a session is already running.
func StartProfiler(dataDir string) *Profiler {
	if !atomic.CompareAndSwapUint32(&started, 0, 1) {
		glog.Error("profiler: already started")
		return nil
	}

	p := &Profiler{dataDir: dataDir}
	p.startCpuProfile()
	p.startMemProfile()
	p.startBlockProfile()

	glog.Infof("profiler: started, data dir: %s", dataDir)
	return p
}

// Stop ends the session and flushes all profiles.
func (p *Profiler) Stop() {
	if p == nil || !atomic.CompareAndSwapUint32(&p.stopped, 0, 1) {
		return
	}

	for _, closer := range p.closers {
		closer()
	}
	atomic.StoreUint32(&started, 0)
	glog.Info("profiler: stopped")
}

func (p *Profiler) dumpGoroutines() {
	fn := p.createDumpFile(goroutineProfile)
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("profiler: could not create goroutine dump %q: %v", fn, err)
		return
	}
	defer f.Close()

	if err := pprof.Lookup(goroutineProfile).WriteTo(f, debugLevel); err != nil {
		glog.Errorf("profiler: goroutine dump error: %v", err)
		return
	}
	glog.Infof("profiler: goroutines dumped to %s", fn)
}

func (p *Profiler) startCpuProfile() {
	fn := p.createDumpFile("cpu")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("profiler: could not create cpu profile %q: %v", fn, err)
		return
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		glog.Errorf("profiler: cpu profile error: %v", err)
		f.Close()
		return
	}
	glog.Infof("profiler: cpu profiling enabled, %s", fn)
	p.closers = append(p.closers, func() {
		pprof.StopCPUProfile()
		f.Close()
	})
}

func (p *Profiler) startMemProfile() {
	fn := p.createDumpFile("mem")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("profiler: could not create memory profile %q: %v", fn, err)
		return
	}

	old := runtime.MemProfileRate
	runtime.MemProfileRate = DefaultMemProfileRate
	glog.Infof("profiler: memory profiling enabled (rate %d), %s", runtime.MemProfileRate, fn)
	p.closers = append(p.closers, func() {
		pprof.Lookup("heap").WriteTo(f, 0)
		f.Close()
		runtime.MemProfileRate = old
	})
}

func (p *Profiler) startBlockProfile() {
	fn := p.createDumpFile("block")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("profiler: could not create block profile %q: %v", fn, err)
		return
	}

	runtime.SetBlockProfileRate(1)
	glog.Infof("profiler: block profiling enabled, %s", fn)
	p.closers = append(p.closers, func() {
		pprof.Lookup("block").WriteTo(f, 0)
		f.Close()
		runtime.SetBlockProfileRate(0)
	})
}

func (p *Profiler) createDumpFile(kind string) string {
	return path.Join(p.dataDir, kind+"_"+time.Now().Format(timeFormat)+".pprof")
}
