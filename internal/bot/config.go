package bot

import (
	"time"
)

// BotConfig represents the transport settings of the bot
type BotConfig struct {
	// Long polling timeout in seconds
	UpdateTimeout int
	// Largest spreadsheet accepted for import, in bytes
	MaxImportSize int64
	// Time allowed to download an uploaded file
	DownloadTimeout time.Duration
	// Number of row errors listed in the import report
	MaxImportErrors int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout:   60,
		MaxImportSize:   5 << 20,
		DownloadTimeout: time.Second * 30,
		MaxImportErrors: 5,
	}
}
