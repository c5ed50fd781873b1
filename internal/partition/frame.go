package partition

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mrfiwd/tieredkv/internal/serializer"
)

// frame is one on-disk log record:
//
//	outer:  [total_len:u32][ inner payload (total_len bytes) ]
//	inner:  [key_len:u32][key:key_len bytes][value_bytes:...]
//
// total_len counts every byte of the inner payload (4 + key_len +
// len(valueBytes)). All integers are big-endian.
type frame struct {
	key        string
	valueBytes []byte // the encoded Value: schema version byte + payload
}

// encode renders the frame's outer+inner bytes exactly as they are
// written to segment.log.
func (f frame) encode() []byte {
	keyBytes := []byte(f.key)
	innerLen := 4 + len(keyBytes) + len(f.valueBytes)
	out := make([]byte, 0, 4+innerLen)
	out = appendU32(out, uint32(innerLen))
	out = appendU32(out, uint32(len(keyBytes)))
	out = append(out, keyBytes...)
	out = append(out, f.valueBytes...)
	return out
}

// writeFrame appends f to w and returns the file offset it started at.
func writeFrame(w io.WriteSeeker, f frame) (offset int64, err error) {
	offset, err = w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("partition: seek before write: %w", err)
	}
	if _, err := w.Write(f.encode()); err != nil {
		return 0, fmt.Errorf("partition: write frame: %w", err)
	}
	return offset, nil
}

// readFrameAt seeks to offset and reads one full frame.
func readFrameAt(r io.ReadSeeker, offset int64) (frame, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return frame{}, fmt.Errorf("partition: seek to frame: %w", err)
	}
	return readFrame(r)
}

// readFrame reads one frame from the current position of r.
func readFrame(r io.Reader) (frame, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return frame{}, err
	}
	innerLen := binary.BigEndian.Uint32(lenBuf)
	inner := make([]byte, innerLen)
	if _, err := io.ReadFull(r, inner); err != nil {
		return frame{}, err
	}
	if len(inner) < 4 {
		return frame{}, fmt.Errorf("partition: %w: frame shorter than key-length prefix", serializer.ErrCorruptRecord)
	}
	keyLen := binary.BigEndian.Uint32(inner[:4])
	if uint32(len(inner)-4) < keyLen {
		return frame{}, fmt.Errorf("partition: %w: frame shorter than declared key", serializer.ErrCorruptRecord)
	}
	key := string(inner[4 : 4+keyLen])
	valueBytes := inner[4+keyLen:]
	return frame{key: key, valueBytes: valueBytes}, nil
}

func appendU32(out []byte, n uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return append(out, buf[:]...)
}
