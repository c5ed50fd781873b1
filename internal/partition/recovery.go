package partition

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// recover rebuilds the cold index by scanning segment.log sequentially
// from offset 0. If the file does not exist, the index starts empty;
// that is not an error, it just means nothing was ever flushed. A
// truncated trailing frame (a crash mid-append) stops the scan without
// error: the index ends up pointing at the most recent intact record
// for every key, by virtue of sequential overwrite during the scan.
func (p *Partition) recover() error {
	file, err := os.Open(p.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("partition %d: open log for recovery: %w", p.id, err)
	}
	defer file.Close()

	var offset int64
	for {
		start := offset
		f, n, err := readFrameForRecovery(file)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("partition %d: recovery scan: %w", p.id, err)
		}
		p.cold[f.key] = start
		offset += n
	}
	p.logger.Info().Int("keys", len(p.cold)).Msg("recovered cold index from log")
	return nil
}

// readFrameForRecovery reads one frame and also returns its total
// on-disk size (4 + inner length), so the scanner can advance by exactly
// that much. It treats a short read at any point, in the length prefix
// or the inner payload, as an unexpected EOF, signalling "stop, don't
// fail": the trailing bytes are a torn write and are simply ignored.
func readFrameForRecovery(r io.Reader) (frame, int64, error) {
	f, err := readFrame(r)
	if err != nil {
		return frame{}, 0, err
	}
	total := int64(4 + 4 + len(f.key) + len(f.valueBytes))
	return f, total, nil
}
