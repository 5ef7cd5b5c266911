package config

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Preference keys understood by the connection and sync layers.
const (
	PrefConnectTimeout = "http.connect_timeout"
	PrefLabelTimeout   = "http.label_timeout"
	PrefAcceptLanguage = "http.accept_language"
	PrefSyncEnabled    = "sync.enabled"
	PrefBatchDelay     = "sync.batch_delay"
	PrefQuickDelay     = "sync.quick_delay"
	PrefPageSize       = "sync.page_size"
	PrefItemLimit      = "reader.item_limit"
)

// Preferences is a read-only key lookup seeded from the loaded Config.
type Preferences struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewPreferences(cfg *Config) *Preferences {
	p := &Preferences{values: map[string]string{}}
	if cfg == nil {
		return p
	}
	if cfg.HTTPConfig != nil {
		p.values[PrefConnectTimeout] = cfg.HTTPConfig.ConnectTimeout.String()
		p.values[PrefLabelTimeout] = cfg.HTTPConfig.LabelTimeout.String()
		p.values[PrefAcceptLanguage] = cfg.HTTPConfig.AcceptLanguage
	}
	if cfg.SyncConfig != nil {
		p.values[PrefSyncEnabled] = strconv.FormatBool(cfg.SyncConfig.Enabled)
		p.values[PrefBatchDelay] = cfg.SyncConfig.BatchDelay.String()
		p.values[PrefQuickDelay] = cfg.SyncConfig.QuickDelay.String()
		p.values[PrefPageSize] = strconv.Itoa(cfg.SyncConfig.PageSize)
	}
	if cfg.ReaderConfig != nil {
		p.values[PrefItemLimit] = strconv.Itoa(cfg.ReaderConfig.ItemLimit)
	}
	return p
}

// NewStaticPreferences builds a store from literal values, mainly for tests.
func NewStaticPreferences(values map[string]string) *Preferences {
	p := &Preferences{values: make(map[string]string, len(values))}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

func (p *Preferences) lookup(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (p *Preferences) GetString(key, def string) string {
	if v, ok := p.lookup(key); ok {
		return v
	}
	return def
}

func (p *Preferences) GetInt(key string, def int) int {
	if v, ok := p.lookup(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (p *Preferences) GetBool(key string, def bool) bool {
	if v, ok := p.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (p *Preferences) GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := p.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
