// Package netutil implements the tiny synchronous TCP request/response
// primitive shared by the coordinator (client -> leader) and the node
// (leader -> follower replication fan-out): dial, send one line, read
// one bounded reply, close.
package netutil

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// MaxResponseBytes is the one-shot protocol's response size ceiling.
const MaxResponseBytes = 1024

// DialTimeout bounds how long SendRequest waits to establish the TCP
// connection before giving up.
const DialTimeout = 3 * time.Second

// SendRequest opens a TCP connection to addr, writes message as a single
// line, reads up to MaxResponseBytes in one receive, and closes the
// connection. It never retries. A refused connection is reported as a
// wire-format "Error: ..." string the coordinator can pass straight
// through to its caller.
func SendRequest(addr string, message string) string {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && isConnRefused(opErr) {
			return fmt.Sprintf("Error: Connection refused from %s. Node might be down.", addr)
		}
		return fmt.Sprintf("Error: %s", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(message)); err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	buf := make([]byte, MaxResponseBytes)
	reader := bufio.NewReader(conn)
	n, err := reader.Read(buf)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}
	return string(buf[:n])
}

// isConnRefused reports whether a dial error was ECONNREFUSED.
// syscall.ECONNREFUSED ends up wrapped several layers deep (OpError ->
// SyscallError -> Errno) depending on platform, so matching on the
// standard error text is the most portable check available without
// importing syscall directly.
func isConnRefused(opErr *net.OpError) bool {
	return opErr.Op == "dial" && strings.Contains(opErr.Err.Error(), "connection refused")
}
