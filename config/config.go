package config

import (
	"time"

	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
)

type AppConfig struct {
	DataDir    string `env:"FEEDSYNC_DATA_DIR" envDefault:".feedsync"`
	ListenAddr string `env:"FEEDSYNC_LISTEN_ADDR" envDefault:"127.0.0.1:12222"`
	APIKey     string `env:"FEEDSYNC_API_KEY"`
	Logger     *logger.Config
	Tracing    *tracing.JaegerConfig
}

type HTTPConfig struct {
	UserAgent        string        `env:"HTTP_USER_AGENT" envDefault:"feedsync/1.0"`
	ConnectTimeout   time.Duration `env:"HTTP_CONNECT_TIMEOUT" envDefault:"30s"`
	LabelTimeout     time.Duration `env:"HTTP_LABEL_TIMEOUT" envDefault:"5s"`
	AcceptLanguage   string        `env:"HTTP_ACCEPT_LANGUAGE" envDefault:"en"`
	InsecureTLS      bool          `env:"HTTP_INSECURE_TLS" envDefault:"false"`
	FallbackEncoding string        `env:"HTTP_FALLBACK_ENCODING" envDefault:"windows-1252"`
}

type ProxyConfig struct {
	Enabled  bool     `env:"PROXY_ENABLED" envDefault:"false"`
	Host     string   `env:"PROXY_HOST"`
	Port     int      `env:"PROXY_PORT" envDefault:"8080"`
	Username string   `env:"PROXY_USERNAME"`
	Password string   `env:"PROXY_PASSWORD"`
	Domain   string   `env:"PROXY_DOMAIN"`
	NoProxy  []string `env:"PROXY_NO_PROXY" envSeparator:"," envDefault:"localhost,127.0.0.1"`
}

type ReaderConfig struct {
	BaseURL   string        `env:"READER_BASE_URL" envDefault:"https://www.google.com/reader/api/0"`
	LoginURL  string        `env:"READER_LOGIN_URL" envDefault:"https://www.google.com/accounts/ClientLogin"`
	ClientID  string        `env:"READER_CLIENT_ID" envDefault:"feedsync"`
	ItemLimit int           `env:"READER_ITEM_LIMIT" envDefault:"200"`
	TokenTTL  time.Duration `env:"READER_TOKEN_TTL" envDefault:"30m"`
}

type SyncConfig struct {
	Enabled        bool          `env:"SYNC_ENABLED" envDefault:"true"`
	BatchDelay     time.Duration `env:"SYNC_BATCH_DELAY" envDefault:"10s"`
	QuickDelay     time.Duration `env:"SYNC_QUICK_DELAY" envDefault:"1s"`
	PageSize       int           `env:"SYNC_PAGE_SIZE" envDefault:"150"`
	ResyncSchedule string        `env:"SYNC_RESYNC_SCHEDULE" envDefault:"@every 5m"`
	StoreFile      string        `env:"SYNC_STORE_FILE" envDefault:"syncitems.db"`
}

type S3Config struct {
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"S3_ACCESS_KEY_SECRET"`
	PathStyle       bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
}
