package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopologyYAML = `
nodes:
  0: {host: localhost, port: 8000}
  1: {host: localhost, port: 8001}
  2: {host: localhost, port: 8002}
partitions:
  0: {leader: 0, followers: [1]}
  1: {leader: 1, followers: [2]}
  2: {leader: 2, followers: [0]}
  3: {leader: 0, followers: [2]}
`

func TestParse_Valid(t *testing.T) {
	topo, err := Parse([]byte(testTopologyYAML))
	require.NoError(t, err)
	assert.Equal(t, 4, topo.PartitionCount())

	ep, err := topo.LeaderEndpoint(1)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8001", ep.Addr())

	role, assigned := topo.RoleOf(2, 1)
	assert.True(t, assigned)
	assert.Equal(t, "follower", role)

	role, assigned = topo.RoleOf(0, 1)
	assert.False(t, assigned)
	assert.Empty(t, role)
}

func TestParse_RejectsDanglingReferences(t *testing.T) {
	_, err := Parse([]byte(`
nodes:
  0: {host: localhost, port: 8000}
partitions:
  0: {leader: 9, followers: []}
`))
	require.Error(t, err)
}

func TestPartitionsForNode(t *testing.T) {
	topo, err := Parse([]byte(testTopologyYAML))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, topo.PartitionsForNode(0))
	assert.Equal(t, []int{0, 1}, topo.PartitionsForNode(1))
	assert.Equal(t, []int{1, 2, 3}, topo.PartitionsForNode(2))
}
