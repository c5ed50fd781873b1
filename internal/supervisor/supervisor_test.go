package supervisor

import (
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReady_SucceedsOncePortOpens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = waitReady(ln.Addr().String(), time.Second)
	assert.NoError(t, err)
}

func TestWaitReady_TimesOutWhenNothingListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = waitReady(addr, 150*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitOrKill_KillsAfterGrace(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	err := waitOrKill(cmd, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "killed")
}

func TestWaitOrKill_ReturnsCleanlyOnExit(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	err := waitOrKill(cmd, time.Second)
	assert.NoError(t, err)
}
