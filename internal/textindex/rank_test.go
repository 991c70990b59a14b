package textindex

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// matchinfoBlob builds a 'pcnalx' blob for one phrase.
func matchinfoBlob(rows uint32, avg, length []uint32, hits [][3]uint32) []byte {
	vals := []uint32{1, uint32(len(avg)), rows}
	vals = append(vals, avg...)
	vals = append(vals, length...)
	for _, h := range hits {
		vals = append(vals, h[0], h[1], h[2])
	}
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.NativeEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func TestBM25_MoreHitsScoreHigher(t *testing.T) {
	one := matchinfoBlob(100, []uint32{5}, []uint32{5}, [][3]uint32{{1, 10, 10}})
	three := matchinfoBlob(100, []uint32{5}, []uint32{5}, [][3]uint32{{3, 10, 10}})
	assert.Greater(t, bm25(three), bm25(one))
}

func TestBM25_RareTermsScoreHigher(t *testing.T) {
	rare := matchinfoBlob(100, []uint32{5}, []uint32{5}, [][3]uint32{{1, 2, 2}})
	common := matchinfoBlob(100, []uint32{5}, []uint32{5}, [][3]uint32{{1, 60, 60}})
	assert.Greater(t, bm25(rare), bm25(common))
}

func TestBM25_WeightsScaleColumns(t *testing.T) {
	blob := matchinfoBlob(100, []uint32{5, 5}, []uint32{5, 5}, [][3]uint32{{0, 0, 0}, {1, 10, 10}})
	assert.Greater(t, bm25(blob, 1, 4), bm25(blob, 1, 1))
}

func TestBM25_ShortBlob(t *testing.T) {
	assert.Zero(t, bm25([]byte{1, 2, 3}))
	assert.Zero(t, bm25(nil))
}
