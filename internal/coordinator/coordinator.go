// Package coordinator implements the stateless client-side router:
// hash a key to a partition, look up that partition's leader endpoint,
// forward the command over TCP, and return the reply.
package coordinator

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/mrfiwd/tieredkv/internal/cluster"
	"github.com/mrfiwd/tieredkv/internal/netutil"
)

// Coordinator routes requests to the leader of whichever partition a key
// hashes to. It holds no mutable state of its own beyond the topology.
type Coordinator struct {
	topology *cluster.Topology
}

// New builds a Coordinator bound to a topology.
func New(topology *cluster.Topology) *Coordinator {
	return &Coordinator{topology: topology}
}

// PartitionFor computes the partition id a key routes to: SHA-1(key) as
// an unsigned big integer, mod the partition count. Routing is
// deterministic for a fixed topology and key.
func (c *Coordinator) PartitionFor(key string) int {
	sum := sha1.Sum([]byte(key))
	hashInt := new(big.Int).SetBytes(sum[:])
	n := big.NewInt(int64(c.topology.PartitionCount()))
	return int(new(big.Int).Mod(hashInt, n).Int64())
}

// leaderFor resolves the (partitionID, endpoint) a key should be routed
// to.
func (c *Coordinator) leaderFor(key string) (int, cluster.NodeEndpoint, error) {
	pid := c.PartitionFor(key)
	endpoint, err := c.topology.LeaderEndpoint(pid)
	if err != nil {
		return 0, cluster.NodeEndpoint{}, err
	}
	return pid, endpoint, nil
}

// Put routes a PUT to the leader of key's partition and returns the
// server's reply string verbatim.
func (c *Coordinator) Put(key string, value any) (string, error) {
	pid, endpoint, err := c.leaderFor(key)
	if err != nil {
		return "", err
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("coordinator: marshal put value: %w", err)
	}
	msg := fmt.Sprintf("PUT %d %s %s", pid, key, valueJSON)
	return netutil.SendRequest(endpoint.Addr(), msg), nil
}

// Get routes a GET to the leader of key's partition. If the reply is the
// literal NOT_FOUND it returns (nil, nil). If the reply is a network-
// layer "Error: ..." string it is returned as-is via the error return
// rather than parsed as JSON.
func (c *Coordinator) Get(key string) (any, error) {
	pid, endpoint, err := c.leaderFor(key)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("GET %d %s", pid, key)
	reply := netutil.SendRequest(endpoint.Addr(), msg)
	if strings.HasPrefix(reply, "Error:") {
		return nil, fmt.Errorf("%s", reply)
	}
	if reply == "NOT_FOUND" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(reply), &v); err != nil {
		return nil, fmt.Errorf("coordinator: parse get reply %q: %w", reply, err)
	}
	return v, nil
}

// Status routes a STATUS request to the leader of key's partition and
// returns the server's reply string verbatim (HOT_STORAGE, COLD_STORAGE,
// NOT_FOUND, or an error string).
func (c *Coordinator) Status(key string) (string, error) {
	pid, endpoint, err := c.leaderFor(key)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("STATUS %d %s", pid, key)
	return netutil.SendRequest(endpoint.Addr(), msg), nil
}

// Hex routes a HEX request to the leader of key's partition and returns
// the server's reply string verbatim (hex digits, NOT_FOUND, or an error
// string).
func (c *Coordinator) Hex(key string) (string, error) {
	pid, endpoint, err := c.leaderFor(key)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("HEX %d %s", pid, key)
	return netutil.SendRequest(endpoint.Addr(), msg), nil
}
