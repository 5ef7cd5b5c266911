package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
)

type Config struct {
	AppConfig    *AppConfig
	Logger       *logger.Config
	Tracing      *tracing.JaegerConfig
	HTTPConfig   *HTTPConfig
	ProxyConfig  *ProxyConfig
	ReaderConfig *ReaderConfig
	SyncConfig   *SyncConfig
	S3Config     *S3Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:    &AppConfig{},
		Logger:       &logger.Config{},
		Tracing:      &tracing.JaegerConfig{},
		HTTPConfig:   &HTTPConfig{},
		ProxyConfig:  &ProxyConfig{},
		ReaderConfig: &ReaderConfig{},
		SyncConfig:   &SyncConfig{},
		S3Config:     &S3Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading feedsync config")
	}

	return config, nil
}
