// Package cpuinfo resolves the CPU core count used to size worker
// partitions and the round-robin CPU-pinning cursor. It prefers real
// topology information over a bare goroutine-scheduler core count, since a
// cgroup CPU quota or NUMA layout can make runtime.NumCPU() a poor proxy for
// how many OS-level workers should be forked.
package cpuinfo

import (
	"runtime"

	"github.com/jaypipes/ghw"
	"github.com/elastic/go-sysinfo"

	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

// Topology describes the host's CPU layout as far as the partitioning
// algorithm cares.
type Topology struct {
	// Cores is the number of logical cores available for worker
	// partitioning.
	Cores int
	// Source records where Cores came from, for diagnostic logging.
	Source string
}

// Detect resolves the current host's Topology. It never fails: each stage
// falls back to the next, ending in runtime.NumCPU(), which is always
// available.
//
// go-sysinfo's host info is consulted first to decide whether ghw's
// enumeration can be trusted at all: ghw reads host-level topology, which
// overcounts a cgroup-confined container's real CPU budget, so a
// containerized host skips straight to runtime.NumCPU() instead of
// reporting the full host's thread count.
func Detect(log swarmlog.Logger) Topology {
	if log == nil {
		log = swarmlog.Discard()
	}

	containerized := false
	if host, err := sysinfo.Host(); err != nil {
		log.Debugf("cpuinfo: go-sysinfo.Host unavailable: %v", err)
	} else if info := host.Info(); info.Containerized != nil {
		containerized = *info.Containerized
		log.WithFields(map[string]any{
			"hostname":      info.Hostname,
			"architecture":  info.Architecture,
			"containerized": containerized,
		}).Debug("cpuinfo: resolved host info")
	}

	if containerized {
		log.Debug("cpuinfo: containerized host, skipping host-level ghw enumeration")
	} else if info, err := ghw.CPU(); err != nil {
		log.Debugf("cpuinfo: ghw.CPU unavailable: %v", err)
	} else if info != nil && info.TotalThreads > 0 {
		return Topology{Cores: int(info.TotalThreads), Source: "ghw"}
	}

	return Topology{Cores: runtime.NumCPU(), Source: "runtime.NumCPU"}
}
