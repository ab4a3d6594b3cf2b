package notification

import (
	"fmt"
	"net/url"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/notification"
)

// EndpointsFromConfig converts configured endpoints.
func EndpointsFromConfig(cfgs []config.EndpointConfig) ([]*notification.Endpoint, error) {
	endpoints := make([]*notification.Endpoint, 0, len(cfgs))
	for i, c := range cfgs {
		u, err := url.Parse(c.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: endpoints[%d]: %q", notification.ErrInvalidEndpoint, i, c.URL)
		}

		ep := &notification.Endpoint{
			URL:     c.URL,
			Secret:  c.Secret,
			Headers: c.Headers,
			Enabled: c.Enabled,
			Name:    c.Name,
		}
		if len(c.EventFilter) > 0 {
			ep.Filter = notification.FilterByType(eventTypes(c.EventFilter)...)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// NewFromConfig builds the notifier chain described by cfg: a log notifier
// and/or a webhook notifier behind an asynchronous dispatcher. It returns
// nil when notifications are disabled.
func NewFromConfig(cfg config.NotificationConfig) (notification.Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var chain notification.Multi
	if cfg.Log {
		chain = append(chain, NewLogNotifier())
	}

	if len(cfg.Endpoints) > 0 {
		endpoints, err := EndpointsFromConfig(cfg.Endpoints)
		if err != nil {
			return nil, err
		}

		wcfg := DefaultWebhookNotifierConfig()
		wcfg.Endpoints = endpoints
		wcfg.EnableBatching = cfg.Batching.Enabled
		if cfg.Batching.MaxSize > 0 {
			wcfg.BatcherConfig.MaxBatchSize = cfg.Batching.MaxSize
		}
		wcfg.BatcherConfig.MaxWait = cfg.Batching.MaxWait.Or(wcfg.BatcherConfig.MaxWait)
		if len(cfg.EventFilter) > 0 {
			wcfg.GlobalFilter = notification.FilterByType(eventTypes(cfg.EventFilter)...)
		}
		chain = append(chain, NewWebhookNotifier(wcfg))
	}

	if len(chain) == 0 {
		return nil, nil
	}
	return NewDispatcher(chain, DefaultDispatcherConfig()), nil
}

func eventTypes(names []string) []notification.EventType {
	types := make([]notification.EventType, len(names))
	for i, n := range names {
		types[i] = notification.EventType(n)
	}
	return types
}
