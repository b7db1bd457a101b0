//go:build linux

package procman

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/swarmreq/swarmreq/pkg/cpuinfo"
)

// pinCPU binds pid to one CPU chosen by round-robin cursor modulo the
// detected core count.
func pinCPU(pid, cursor int, topo cpuinfo.Topology) error {
	cores := topo.Cores
	if cores <= 0 {
		cores = 1
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cursor % cores)
	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return fmt.Errorf("procman: SchedSetaffinity pid %d to cpu %d: %w", pid, cursor%cores, err)
	}
	return nil
}
