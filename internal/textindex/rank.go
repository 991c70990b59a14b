package textindex

import (
	"database/sql"
	"encoding/binary"
	"math"
	"sync"

	"github.com/mattn/go-sqlite3"
)

const (
	driverName   = "sqlite3_trailmark"
	rankFunc     = "trailmark_bm25"
	matchinfoFmt = "pcnalx"

	bm25K1 = 1.2
	bm25B  = 0.75
)

var registerOnce sync.Once

// registerDriver registers a sqlite3 driver whose connections carry the
// ranking function.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc(rankFunc, bm25, true)
			},
		})
	})
}

// bm25 scores one row from its matchinfo('pcnalx') blob. Higher is better.
// weights scale each column; missing weights default to 1.
func bm25(info []byte, weights ...float64) float64 {
	if len(info)%4 != 0 {
		return 0
	}
	vals := make([]uint32, len(info)/4)
	for i := range vals {
		vals[i] = binary.NativeEndian.Uint32(info[i*4:])
	}
	if len(vals) < 3 {
		return 0
	}

	phrases := int(vals[0])
	cols := int(vals[1])
	rows := float64(vals[2])
	avgOff := 3
	lenOff := avgOff + cols
	xOff := lenOff + cols
	if len(vals) < xOff+3*phrases*cols {
		return 0
	}

	var score float64
	for p := 0; p < phrases; p++ {
		for c := 0; c < cols; c++ {
			x := xOff + 3*(p*cols+c)
			tf := float64(vals[x])
			if tf == 0 {
				continue
			}
			docsWithHit := float64(vals[x+2])

			idf := math.Log((rows - docsWithHit + 0.5) / (docsWithHit + 0.5))
			if idf <= 0 {
				idf = 1e-6
			}

			avg := float64(vals[avgOff+c])
			if avg == 0 {
				avg = 1
			}
			length := float64(vals[lenOff+c])

			w := 1.0
			if c < len(weights) {
				w = weights[c]
			}
			score += w * idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*length/avg))
		}
	}
	return score
}
