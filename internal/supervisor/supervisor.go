// Package supervisor starts one OS process per cluster node, waits for
// each to become reachable, and tears the cluster down again by sending
// the wire SHUTDOWN command to every node.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrfiwd/tieredkv/internal/cluster"
	"github.com/mrfiwd/tieredkv/internal/netutil"
)

// ReadinessTimeout bounds how long Up waits for every node's TCP port to
// accept connections before giving up.
const ReadinessTimeout = 10 * time.Second

// ShutdownGrace bounds how long Down waits for a node process to exit
// after sending SHUTDOWN before force-killing it.
const ShutdownGrace = 5 * time.Second

// Supervisor spawns and tears down a fleet of kvnode processes, one per
// node id in the topology.
type Supervisor struct {
	topology   *cluster.Topology
	nodeBinary string
	topoPath   string
	dataDir    string
	logger     zerolog.Logger

	procs map[int]*exec.Cmd
}

// New builds a Supervisor. nodeBinary is the path to the kvnode
// executable; topoPath is the topology YAML file every node process is
// told to load.
func New(topology *cluster.Topology, nodeBinary, topoPath, dataDir string, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		topology:   topology,
		nodeBinary: nodeBinary,
		topoPath:   topoPath,
		dataDir:    dataDir,
		logger:     logger,
		procs:      make(map[int]*exec.Cmd),
	}
}

// Up spawns every node id in the topology as its own process and blocks
// until each one's TCP port is accepting connections (or the readiness
// timeout elapses).
func (s *Supervisor) Up(ctx context.Context) error {
	for nodeID := range s.topology.Nodes {
		cmd := exec.CommandContext(ctx, s.nodeBinary,
			"--node-id", fmt.Sprintf("%d", nodeID),
			"--topology", s.topoPath,
			"--data-dir", s.dataDir,
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("supervisor: start node %d: %w", nodeID, err)
		}
		s.procs[nodeID] = cmd
		s.logger.Info().Int("node_id", nodeID).Int("pid", cmd.Process.Pid).Msg("node process started")
	}

	for nodeID, endpoint := range s.topology.Nodes {
		if err := waitReady(endpoint.Addr(), ReadinessTimeout); err != nil {
			return fmt.Errorf("supervisor: node %d never became ready: %w", nodeID, err)
		}
	}
	return nil
}

// Down sends SHUTDOWN to every node, waits up to ShutdownGrace for each
// process to exit cleanly, and force-kills any stragglers. A node
// process exits on its own once it receives SHUTDOWN (see cmd/kvnode),
// so the wait-or-kill loop over s.procs only has anything to do when Up
// and Down run in the same process (e.g. a test driver); a `down`
// invoked as a separate CLI process still shuts the cluster down via the
// wire command, it just can't reap process handles it never held.
func (s *Supervisor) Down() error {
	for nodeID, endpoint := range s.topology.Nodes {
		reply := netutil.SendRequest(endpoint.Addr(), "SHUTDOWN")
		s.logger.Info().Int("node_id", nodeID).Str("reply", reply).Msg("sent shutdown")
	}

	var firstErr error
	for nodeID, cmd := range s.procs {
		if err := waitOrKill(cmd, ShutdownGrace); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("supervisor: node %d: %w", nodeID, err)
		}
	}
	return firstErr
}

func waitReady(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return lastErr
}

func waitOrKill(cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		return fmt.Errorf("process did not exit within %s, killed", grace)
	}
}
