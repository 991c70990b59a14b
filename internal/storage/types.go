package storage

import (
	"log/slog"
	"time"
)

// Kind identifies a record type on disk. It is written into every value
// header so a reader can refuse records it does not understand.
type Kind uint16

const (
	KindHistory  Kind = 1
	KindBookmark Kind = 2
	KindPolicy   Kind = 3
)

// RecordVersion is the only on-disk layout version currently written.
const RecordVersion uint16 = 1

func (k Kind) String() string {
	switch k {
	case KindHistory:
		return "history"
	case KindBookmark:
		return "bookmark"
	case KindPolicy:
		return "policy"
	default:
		return "unknown"
	}
}

// Config holds configuration for a record store.
type Config struct {
	// Dir is the badger directory. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64

	Logger *slog.Logger
}

// DefaultConfig returns production defaults rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration suited to tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}
