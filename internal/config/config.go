package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is read from DAILYSTRIPS_* environment variables.
type Config struct {
	DBPath           string `default:"comics.db"`
	ImageDir         string `default:"images"`
	BaseURL          string `default:"https://hs.fi"`
	UserAgent        string `default:"dailystrips/1.0"`
	FetchTimeoutSecs int    `default:"10"`
	FetchRetries     int    `default:"2"`
	FetchWaitSecs    int    `default:"1"`
	CrawlDelayMillis int    `default:"200"`
	CrawlMaxDepth    int    `default:"0"`
	PostHour         int    `default:"12"`
	PostMinute       int    `default:"0"`
	Debug            bool   `default:"false"`
}

func NewConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("dailystrips", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
