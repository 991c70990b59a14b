package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// headerSize is [u16 kind][u16 version][u32 crc32 of payload].
const headerSize = 8

// encodeRecord gob-encodes v behind a kind/version/checksum header.
func encodeRecord(kind Kind, version uint16, v any) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode %s: %w", kind, err)
	}

	out := make([]byte, headerSize+payload.Len())
	binary.BigEndian.PutUint16(out[0:2], uint16(kind))
	binary.BigEndian.PutUint16(out[2:4], version)
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(payload.Bytes()))
	copy(out[headerSize:], payload.Bytes())
	return out, nil
}

// decodeRecord validates the header and decodes the payload into out.
// Unknown (kind, version) pairs and checksum mismatches fail closed.
func decodeRecord(data []byte, kind Kind, version uint16, out any) error {
	if len(data) < headerSize+1 {
		return coreerr.New(coreerr.ErrCorruption, "decode "+kind.String(), fmt.Errorf("record too short (%d bytes)", len(data)))
	}

	gotKind := Kind(binary.BigEndian.Uint16(data[0:2]))
	gotVersion := binary.BigEndian.Uint16(data[2:4])
	if gotKind != kind || gotVersion != version {
		return coreerr.New(coreerr.ErrCorruption, "decode "+kind.String(),
			fmt.Errorf("unexpected record header (kind=%d version=%d), want (kind=%d version=%d)",
				gotKind, gotVersion, kind, version))
	}

	payload := data[headerSize:]
	stored := binary.BigEndian.Uint32(data[4:8])
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return coreerr.New(coreerr.ErrCorruption, "decode "+kind.String(),
			fmt.Errorf("checksum mismatch: stored=%08x computed=%08x", stored, computed))
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(out); err != nil {
		return coreerr.New(coreerr.ErrCorruption, "decode "+kind.String(), err)
	}
	return nil
}
