// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	DBDriver string
	DBDSN    string
	BlobDir  string

	RedisAddr string
	CacheTTL  time.Duration

	// Compression selects the archive codec: gzip, lz4, brotli or none.
	Compression string

	// MaxLockTime is the edit lock lease duration.
	MaxLockTime time.Duration

	// The retention timers are independent: archiving stale projects and
	// purging archived ones can each be enabled on their own. A zero
	// duration disables the sweep.
	ArchiveProjectsAfter   time.Duration
	DeleteArchivedAfter    time.Duration
	ArchiveSchedule        string
	DeleteArchivedSchedule string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "quill.db")
	v.SetDefault("BLOB_DIR", "blobs")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("COMPRESSION", "gzip")
	v.SetDefault("MAX_LOCK_TIME", "90s")
	v.SetDefault("AUTOMATICALLY_ARCHIVE_PROJECTS_AFTER", "0")
	v.SetDefault("AUTOMATICALLY_DELETE_ARCHIVED_PROJECTS_AFTER", "0")
	v.SetDefault("ARCHIVE_SCHEDULE", "@hourly")
	v.SetDefault("DELETE_ARCHIVED_SCHEDULE", "@hourly")

	return &Config{
		DBDriver:               v.GetString("DB_DRIVER"),
		DBDSN:                  v.GetString("DB_DSN"),
		BlobDir:                v.GetString("BLOB_DIR"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		CacheTTL:               v.GetDuration("CACHE_TTL"),
		Compression:            v.GetString("COMPRESSION"),
		MaxLockTime:            v.GetDuration("MAX_LOCK_TIME"),
		ArchiveProjectsAfter:   v.GetDuration("AUTOMATICALLY_ARCHIVE_PROJECTS_AFTER"),
		DeleteArchivedAfter:    v.GetDuration("AUTOMATICALLY_DELETE_ARCHIVED_PROJECTS_AFTER"),
		ArchiveSchedule:        v.GetString("ARCHIVE_SCHEDULE"),
		DeleteArchivedSchedule: v.GetString("DELETE_ARCHIVED_SCHEDULE"),
	}
}
