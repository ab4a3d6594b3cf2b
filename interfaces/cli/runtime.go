package cli

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/promote"
	"github.com/felixgeelhaar/promote/application"
	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/notification"
	infraconfig "github.com/felixgeelhaar/promote/infrastructure/config"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
	infranotification "github.com/felixgeelhaar/promote/infrastructure/notification"
	"github.com/felixgeelhaar/promote/infrastructure/publish"
	"github.com/felixgeelhaar/promote/infrastructure/snapshot"
	"github.com/felixgeelhaar/promote/infrastructure/storage"
	"github.com/felixgeelhaar/promote/infrastructure/telemetry"
)

// runtime is the workflow service and everything it was assembled from.
type runtime struct {
	cfg       *config.Config
	build     *infraconfig.BuildResult
	service   *application.Service
	store     *storage.Handle
	notifier  notification.Notifier
	telemetry *telemetry.Provider
}

// newRuntime wires a workflow service from cfg.
func (a *App) newRuntime(ctx context.Context, cfg *config.Config) (_ *runtime, err error) {
	logging.Replace(logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, a.stderr))

	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	if rt.build, err = infraconfig.NewBuilder(cfg).Build(); err != nil {
		return nil, err
	}

	if rt.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{Version: promote.Version}); err != nil {
		return nil, err
	}
	mcfg := telemetry.DefaultMetricsConfig()
	mcfg.MeterVersion = promote.Version
	mcfg.Provider = rt.telemetry.MeterProvider()
	metrics, err := telemetry.NewMetrics(mcfg)
	if err != nil {
		return nil, err
	}

	if rt.store, err = storage.Open(ctx, cfg); err != nil {
		return nil, err
	}

	snapshots, err := snapshot.NewFromConfig(cfg.Snapshot)
	if err != nil {
		return nil, err
	}

	if rt.notifier, err = buildNotifier(ctx, cfg); err != nil {
		return nil, err
	}

	opts := append(rt.build.Options(), application.WithMetrics(metrics))
	if snapshots != nil {
		opts = append(opts, application.WithSnapshotProvider(snapshots))
	}
	if rt.notifier != nil {
		opts = append(opts, application.WithNotifier(rt.notifier))
	}

	if rt.service, err = application.NewWorkflowService(rt.store, opts...); err != nil {
		return nil, err
	}
	return rt, nil
}

// buildNotifier combines webhook/log notifications with the space
// publisher. It returns nil when neither is configured.
func buildNotifier(ctx context.Context, cfg *config.Config) (notification.Notifier, error) {
	var chain notification.Multi

	n, err := infranotification.NewFromConfig(cfg.Notification)
	if err != nil {
		return nil, err
	}
	if n != nil {
		chain = append(chain, n)
	}

	p, err := publish.NewFromConfig(ctx, cfg.Publish)
	if err != nil {
		_ = chain.Close()
		return nil, err
	}
	if p != nil {
		chain = append(chain, p)
	}

	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	default:
		return chain, nil
	}
}

// Close drains the service, then releases notifier, store and telemetry.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.service != nil {
		errs = append(errs, rt.service.Close())
	}
	if rt.notifier != nil {
		errs = append(errs, rt.notifier.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close(ctx))
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
