package node

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mrfiwd/tieredkv/internal/netutil"
	"github.com/mrfiwd/tieredkv/internal/partition"
	"github.com/mrfiwd/tieredkv/internal/serializer"
)

// handleConn services exactly one request per connection: a single
// bounded read, one dispatch, one write, then close. Requests are not
// newline-terminated: a client writes its line once and then waits for
// the reply, so the server must not block waiting for a delimiter that
// will never arrive. Any panic while dispatching is recovered and
// reported as SERVER_ERROR, keeping the one-shot protocol intact.
func (n *Node) handleConn(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, netutil.MaxResponseBytes)
	nRead, err := conn.Read(buf)
	if err != nil || nRead == 0 {
		return
	}
	line := strings.TrimSpace(string(buf[:nRead]))
	if line == "" {
		return
	}

	response := n.dispatchSafely(line)
	if response == "" {
		return
	}
	_, _ = conn.Write([]byte(response))

	if isShutdown(line) {
		go func() { _ = n.Shutdown() }()
	}
}

// isShutdown reports whether the request line's command verb is exactly
// SHUTDOWN, matching dispatch's own token comparison. A garbage line
// that merely begins with the substring (e.g. "SHUTDOWNFOO") must not
// stop the node.
func isShutdown(line string) bool {
	tokens := strings.SplitN(line, " ", 2)
	return strings.ToUpper(tokens[0]) == "SHUTDOWN"
}

// dispatchSafely wraps dispatch with a panic recovery boundary so a bug
// in command handling never takes the node process down.
func (n *Node) dispatchSafely(line string) (response string) {
	defer func() {
		if r := recover(); r != nil {
			response = fmt.Sprintf("SERVER_ERROR: %v", r)
		}
	}()
	return n.dispatch(line)
}

// dispatch tokenizes a single request line on ASCII spaces and routes it
// to the matching handler: the command verb, then up to three more
// tokens, with PUT/REPLICATE's value argument being the remainder of
// the line (a JSON literal that may itself contain spaces).
func (n *Node) dispatch(line string) string {
	tokens := strings.SplitN(line, " ", 4)
	command := strings.ToUpper(tokens[0])

	switch {
	case command == "PUT" && len(tokens) == 4:
		return n.handlePut(tokens[1], tokens[2], tokens[3])
	case command == "GET" && len(tokens) == 3:
		return n.handleGet(tokens[1], tokens[2])
	case command == "REPLICATE" && len(tokens) == 4:
		return n.handleReplicate(tokens[1], tokens[2], tokens[3])
	case command == "STATUS" && len(tokens) == 3:
		return n.handleStatus(tokens[1], tokens[2])
	case command == "HEX" && len(tokens) == 3:
		return n.handleHex(tokens[1], tokens[2])
	case command == "INSPECT":
		return n.handleInspect()
	case command == "SHUTDOWN":
		return "SUCCESS: Shutting down."
	default:
		return "ERROR: Invalid command"
	}
}

func parsePartitionID(s string) (int, error) {
	return strconv.Atoi(s)
}

// decodeWireValue parses the JSON literal argument of PUT/REPLICATE and
// classifies it into a serializer.Value per the encoder selection
// priority.
func decodeWireValue(jsonLiteral string) (serializer.Value, error) {
	var raw any
	if err := json.Unmarshal([]byte(jsonLiteral), &raw); err != nil {
		return serializer.Value{}, fmt.Errorf("invalid json value: %w", err)
	}
	return serializer.FromJSONAny(raw)
}

func (n *Node) handlePut(pidStr, key, jsonLiteral string) string {
	pid, err := parsePartitionID(pidStr)
	if err != nil {
		return "ERROR: Invalid partition id"
	}
	p, ok := n.partitions[pid]
	if !ok {
		return "ERROR: Partition not found"
	}
	if p.Role() != partition.RoleLeader {
		return "ERROR: Not a leader for this partition."
	}
	value, err := decodeWireValue(jsonLiteral)
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}

	reqID := uuid.NewString()
	n.logger.Debug().Str("req_id", reqID).Int("partition_id", pid).Str("key", key).Msg("leader put")
	if err := p.Put(key, value); err != nil {
		n.logger.Error().Err(err).Str("req_id", reqID).Msg("put failed")
		return fmt.Sprintf("SERVER_ERROR: %s", err)
	}
	return "SUCCESS: Put data to leader."
}

func (n *Node) handleGet(pidStr, key string) string {
	pid, err := parsePartitionID(pidStr)
	if err != nil {
		return "ERROR: Invalid partition id"
	}
	p, ok := n.partitions[pid]
	if !ok {
		return "ERROR: Partition not found"
	}
	value, err := p.Get(key)
	if err != nil {
		if err == partition.ErrNotFound {
			return "NOT_FOUND"
		}
		return fmt.Sprintf("SERVER_ERROR: %s", err)
	}
	j, err := value.ToJSON()
	if err != nil {
		return fmt.Sprintf("SERVER_ERROR: %s", err)
	}
	return string(j)
}

func (n *Node) handleReplicate(pidStr, key, jsonLiteral string) string {
	pid, err := parsePartitionID(pidStr)
	if err != nil {
		return "ERROR: Invalid partition id"
	}
	p, ok := n.partitions[pid]
	if !ok {
		return "ERROR: Partition not found"
	}
	if p.Role() != partition.RoleFollower {
		return "ERROR: Not a follower."
	}
	value, err := decodeWireValue(jsonLiteral)
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}
	if err := p.Put(key, value); err != nil {
		return fmt.Sprintf("SERVER_ERROR: %s", err)
	}
	return "SUCCESS: Replicated data."
}

func (n *Node) handleStatus(pidStr, key string) string {
	pid, err := parsePartitionID(pidStr)
	if err != nil {
		return "ERROR: Invalid partition id"
	}
	p, ok := n.partitions[pid]
	if !ok {
		return "ERROR: Partition not found on this node."
	}
	switch p.Location(key) {
	case partition.Hot:
		return "HOT_STORAGE"
	case partition.Cold:
		return "COLD_STORAGE"
	default:
		return "NOT_FOUND"
	}
}

func (n *Node) handleHex(pidStr, key string) string {
	pid, err := parsePartitionID(pidStr)
	if err != nil {
		return "ERROR: Invalid partition id"
	}
	p, ok := n.partitions[pid]
	if !ok {
		return "ERROR: Partition not found on this node."
	}
	raw, err := p.RawBytes(key)
	if err != nil {
		if err == partition.ErrNotFound {
			return "NOT_FOUND"
		}
		return fmt.Sprintf("SERVER_ERROR: %s", err)
	}
	return hex.EncodeToString(raw)
}

func (n *Node) handleInspect() string {
	summary := make(map[string][]string, len(n.partitions))
	for pid, p := range n.partitions {
		summary[fmt.Sprintf("partition_%d", pid)] = p.HotKeys()
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Sprintf("SERVER_ERROR: %s", err)
	}
	return string(b)
}
