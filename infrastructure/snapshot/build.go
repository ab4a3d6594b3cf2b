package snapshot

import (
	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

// NewFromConfig builds the configured provider, or nil when no URL is set.
func NewFromConfig(cfg config.SnapshotConfig) (promotion.SnapshotProvider, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	hc := DefaultHTTPConfig()
	hc.BaseURL = cfg.URL
	hc.Token = cfg.Token
	hc.Timeout = cfg.Timeout.Or(hc.Timeout)
	p, err := NewHTTPProvider(hc)
	if err != nil {
		return nil, err
	}
	return p, nil
}
