// Package node hosts a set of partitions in assigned leader/follower
// roles, serves the one-shot line-oriented TCP protocol, and drives
// asynchronous leader-to-follower replication fan-out.
package node

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrfiwd/tieredkv/internal/cluster"
	"github.com/mrfiwd/tieredkv/internal/netutil"
	"github.com/mrfiwd/tieredkv/internal/partition"
	"github.com/mrfiwd/tieredkv/internal/serializer"
)

// Node owns every partition this node id is assigned (as leader or
// follower) in the topology, and the TCP listener other nodes and the
// coordinator talk to.
type Node struct {
	id       int
	topology *cluster.Topology
	logger   zerolog.Logger

	partitions map[int]*partition.Partition

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closed   bool
}

// New constructs a Node and every partition it owns according to
// topology, rooted at <dataDir>/node_<id>/partition_<p_id>/segment.log.
// Partition construction recovers each partition's cold index from disk.
func New(id int, topology *cluster.Topology, dataDir string, logger zerolog.Logger) (*Node, error) {
	n := &Node{
		id:         id,
		topology:   topology,
		logger:     logger,
		partitions: make(map[int]*partition.Partition),
	}

	nodeDir := filepath.Join(dataDir, fmt.Sprintf("node_%d", id))
	for _, pid := range topology.PartitionsForNode(id) {
		role, _ := topology.RoleOf(id, pid)
		var r partition.Role
		if role == "leader" {
			r = partition.RoleLeader
		} else {
			r = partition.RoleFollower
		}
		p, err := partition.New(pid, nodeDir, r, n, logger)
		if err != nil {
			return nil, fmt.Errorf("node %d: construct partition %d: %w", id, pid, err)
		}
		n.partitions[pid] = p
	}
	return n, nil
}

// ID returns this node's id.
func (n *Node) ID() int { return n.id }

// ListenAndServe binds addr and serves connections until Shutdown is
// called or the listener otherwise fails. Each accepted connection is
// handled on its own goroutine.
func (n *Node) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node %d: listen %s: %w", n.id, addr, err)
	}
	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()

	n.logger.Info().Str("addr", addr).Msg("node listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			n.mu.Lock()
			closed := n.closed
			n.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("node %d: accept: %w", n.id, err)
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting new connections, waits for in-flight ones to
// finish, and flushes every partition before returning.
func (n *Node) Shutdown() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	ln := n.listener
	n.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	n.wg.Wait()

	var firstErr error
	for _, p := range n.partitions {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.logger.Info().Msg("node shut down")
	return firstErr
}

// Replicate implements partition.ReplicationSink. It is called by a
// leader partition after its local write lands in the hot buffer. Each
// follower gets an independent, fire-and-forget REPLICATE send: a
// failure is logged and otherwise ignored, never retried, never rolled
// back. Followers converge eventually or not at all.
func (n *Node) Replicate(partitionID int, key string, value serializer.Value) {
	assignment, ok := n.topology.Partitions[partitionID]
	if !ok {
		return
	}
	valueJSON, err := value.ToJSON()
	if err != nil {
		n.logger.Error().Err(err).Int("partition_id", partitionID).Str("key", key).Msg("replicate: cannot encode value as json")
		return
	}
	msg := fmt.Sprintf("REPLICATE %d %s %s", partitionID, key, valueJSON)

	for _, followerID := range assignment.Followers {
		endpoint, ok := n.topology.Nodes[followerID]
		if !ok {
			continue
		}
		go func(followerID int, addr string) {
			resp := netutil.SendRequest(addr, msg)
			if strings.HasPrefix(resp, "Error:") {
				n.logger.Warn().Str("reply", resp).Int("partition_id", partitionID).Int("follower", followerID).Msg("replication send failed")
				return
			}
			n.logger.Debug().Int("partition_id", partitionID).Int("follower", followerID).Str("key", key).Str("reply", resp).Msg("replicated")
		}(followerID, endpoint.Addr())
	}
}
