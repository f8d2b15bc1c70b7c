package config

import (
	"time"

	"ridestore/internal/utils"
)

type StoreConfig struct {
	// JournalBackend is none, file or mongodb.
	JournalBackend string `yaml:"journal_backend"`
	JournalDir     string `yaml:"journal_dir"`
	SnapshotEvery  int    `yaml:"snapshot_every"`
	// ConsistencyMode is strict or warn.
	ConsistencyMode string        `yaml:"consistency_mode"`
	TxIdleTTL       time.Duration `yaml:"tx_idle_ttl"`
}

func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		JournalBackend:  getEnv("STORE_JOURNAL_BACKEND", utils.JournalNone),
		JournalDir:      getEnv("STORE_JOURNAL_DIR", "./data/journal"),
		SnapshotEvery:   getEnvAsInt("STORE_SNAPSHOT_EVERY", utils.DefaultSnapshotEvery),
		ConsistencyMode: getEnv("STORE_CONSISTENCY_MODE", utils.ConsistencyStrict),
		TxIdleTTL:       getEnvAsDuration("STORE_TX_IDLE_TTL", utils.DefaultTxIdleTTL),
	}
}
