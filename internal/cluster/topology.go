// Package cluster holds the static, immutable cluster topology shared
// by the coordinator and every node: which host:port each node id binds
// to, and which node leads (and which follow) each partition.
package cluster

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// NodeEndpoint is where a node id can be reached over TCP.
type NodeEndpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr renders the endpoint as a dial target.
func (e NodeEndpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// PartitionAssignment names the leader and followers for one partition.
type PartitionAssignment struct {
	Leader    int   `yaml:"leader"`
	Followers []int `yaml:"followers"`
}

// Topology is the read-only, shared configuration loaded once at
// startup: node id -> endpoint, and partition id -> {leader, followers}.
type Topology struct {
	Nodes      map[int]NodeEndpoint        `yaml:"nodes"`
	Partitions map[int]PartitionAssignment `yaml:"partitions"`
}

// topologyFile is the on-disk shape; Topology itself is keyed by int,
// which yaml.v3 can decode directly from integer-looking string keys.
type topologyFile struct {
	Nodes      map[int]NodeEndpoint        `yaml:"nodes"`
	Partitions map[int]PartitionAssignment `yaml:"partitions"`
}

// Load reads and validates a topology YAML file (see configs/topology.yaml
// for the shape).
func Load(path string) (*Topology, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cluster: read topology %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes topology YAML bytes into a validated Topology.
func Parse(b []byte) (*Topology, error) {
	var f topologyFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("cluster: parse topology: %w", err)
	}
	t := &Topology{Nodes: f.Nodes, Partitions: f.Partitions}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topology) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("cluster: topology has no nodes")
	}
	if len(t.Partitions) == 0 {
		return fmt.Errorf("cluster: topology has no partitions")
	}
	for pid, assignment := range t.Partitions {
		if _, ok := t.Nodes[assignment.Leader]; !ok {
			return fmt.Errorf("cluster: partition %d leader %d is not a known node", pid, assignment.Leader)
		}
		for _, f := range assignment.Followers {
			if _, ok := t.Nodes[f]; !ok {
				return fmt.Errorf("cluster: partition %d follower %d is not a known node", pid, f)
			}
		}
	}
	return nil
}

// PartitionCount returns N, the fixed number of partitions the keyspace
// is hash-sharded into.
func (t *Topology) PartitionCount() int {
	return len(t.Partitions)
}

// LeaderEndpoint returns the endpoint of the leader node for a partition.
func (t *Topology) LeaderEndpoint(partitionID int) (NodeEndpoint, error) {
	assignment, ok := t.Partitions[partitionID]
	if !ok {
		return NodeEndpoint{}, fmt.Errorf("cluster: unknown partition %d", partitionID)
	}
	endpoint, ok := t.Nodes[assignment.Leader]
	if !ok {
		return NodeEndpoint{}, fmt.Errorf("cluster: leader node %d not found for partition %d", assignment.Leader, partitionID)
	}
	return endpoint, nil
}

// RoleOf reports whether nodeID is the leader, a follower, or not
// assigned to partitionID at all.
func (t *Topology) RoleOf(nodeID, partitionID int) (role string, assigned bool) {
	assignment, ok := t.Partitions[partitionID]
	if !ok {
		return "", false
	}
	if assignment.Leader == nodeID {
		return "leader", true
	}
	for _, f := range assignment.Followers {
		if f == nodeID {
			return "follower", true
		}
	}
	return "", false
}

// PartitionsForNode returns every partition id that nodeID hosts
// (leader or follower), in ascending order.
func (t *Topology) PartitionsForNode(nodeID int) []int {
	var ids []int
	for pid, assignment := range t.Partitions {
		if assignment.Leader == nodeID {
			ids = append(ids, pid)
			continue
		}
		for _, f := range assignment.Followers {
			if f == nodeID {
				ids = append(ids, pid)
				break
			}
		}
	}
	sort.Ints(ids)
	return ids
}
