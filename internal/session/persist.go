package session

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// FileExt is the suffix of session snapshot files.
const FileExt = ".session"

const (
	fileMagic   = "TMSG"
	fileVersion = uint16(1)
	headerSize  = 4 + 2 + 4
)

// snapshot is the encoded form of a session.
type snapshot struct {
	ID        string
	CreatedAt time.Time
	Nodes     []Node
	Edges     []Edge
}

// encodeSnapshot lays out [magic][u16 version][u32 crc32(payload)][gob payload].
func encodeSnapshot(s snapshot) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(s); err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	buf := make([]byte, headerSize, headerSize+payload.Len())
	copy(buf, fileMagic)
	binary.BigEndian.PutUint16(buf[4:6], fileVersion)
	binary.BigEndian.PutUint32(buf[6:10], crc32.ChecksumIEEE(payload.Bytes()))
	return append(buf, payload.Bytes()...), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	if len(data) < headerSize || string(data[:4]) != fileMagic {
		return s, coreerr.New(coreerr.ErrCorruption, "decode session", errors.New("bad header"))
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != fileVersion {
		return s, coreerr.New(coreerr.ErrCorruption, "decode session", fmt.Errorf("unsupported version %d", v))
	}
	payload := data[headerSize:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(data[6:10]) {
		return s, coreerr.New(coreerr.ErrCorruption, "decode session", errors.New("checksum mismatch"))
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&s); err != nil {
		return s, coreerr.New(coreerr.ErrCorruption, "decode session", err)
	}
	return s, nil
}

// sessionPath returns dir/{id}.session.
func sessionPath(dir, id string) string {
	return filepath.Join(dir, id+FileExt)
}

// writeFileAtomic writes data to a temp file in the target directory,
// fsyncs it, and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*"+FileExt)
	if err != nil {
		return coreerr.New(coreerr.ErrIO, "write session", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return coreerr.New(coreerr.ErrIO, "write session", err)
	}
	if err = tmp.Sync(); err != nil {
		return coreerr.New(coreerr.ErrIO, "sync session", err)
	}
	if err = tmp.Close(); err != nil {
		return coreerr.New(coreerr.ErrIO, "close session", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return coreerr.New(coreerr.ErrIO, "rename session", err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes a rename durable. Not every platform supports it, so
// failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func readSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, coreerr.New(coreerr.ErrIO, "read session", err)
	}
	return decodeSnapshot(data)
}

// listSessionFiles returns session ids found in dir, skipping temp files.
func listSessionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, coreerr.New(coreerr.ErrIO, "list sessions", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, FileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, FileExt))
	}
	return ids, nil
}
