package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rawLogMagic = "OVLYRAW1"

const recordHeaderSize = 12

var (
	ErrBadMagic      = errors.New("not a raw render log")
	ErrRecordTooLong = errors.New("record exceeds 4 GiB")
)

// RawLogWriter appends packed blobs to a timestamped log file. Each record
// is an 8-byte little-endian unix-nano timestamp, a 4-byte little-endian
// length and the blob itself.
type RawLogWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(rawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		f:    f,
		w:    w,
		path: filename,
	}, nil
}

func (r *RawLogWriter) Path() string {
	return r.path
}

func (r *RawLogWriter) Record(payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return ErrRecordTooLong
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

// ReadRawLog calls fn for every record in r, in file order. A record cut
// short at the end of the stream is reported as io.ErrUnexpectedEOF.
func ReadRawLog(r io.Reader, fn func(ts time.Time, payload []byte) error) error {
	br := bufio.NewReader(r)
	magic := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != rawLogMagic {
		return ErrBadMagic
	}

	var header [recordHeaderSize]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		ts := time.Unix(0, int64(binary.LittleEndian.Uint64(header[:8])))
		payload := make([]byte, binary.LittleEndian.Uint32(header[8:12]))
		if _, err := io.ReadFull(br, payload); err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if err := fn(ts, payload); err != nil {
			return err
		}
	}
}
