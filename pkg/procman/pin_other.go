//go:build !windows && !linux

package procman

import "github.com/swarmreq/swarmreq/pkg/cpuinfo"

// pinCPU is a no-op on platforms without a CPU-affinity syscall exposed by
// golang.org/x/sys/unix (e.g. darwin, bsd). Workers still run, just without
// a pinned affinity hint.
func pinCPU(pid, cursor int, topo cpuinfo.Topology) error {
	return nil
}
