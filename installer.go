package esclient

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Installer brings indices and templates into existence at startup. Several
// server nodes typically share one cluster and run the same install sequence
// concurrently; an optional Redis lease keeps them from issuing the same
// create call at once. Creation races that slip through are tolerated.
type Installer struct {
	client   *Client
	redis    *redis.Client
	leaseTTL time.Duration
	log      Logger
}

// InstallerConfig configures an Installer.
type InstallerConfig struct {
	Client   *Client       // connected adapter (required)
	Redis    *redis.Client // lease store (optional; nil disables leasing)
	LeaseTTL time.Duration // lease expiry (default: 30s)
}

// NewInstaller creates an installer bound to a connected client.
func NewInstaller(cfg InstallerConfig) (*Installer, error) {
	if cfg.Client == nil {
		return nil, errors.New("client is required")
	}
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = 30 * time.Second
	}

	return &Installer{
		client:   cfg.Client,
		redis:    cfg.Redis,
		leaseTTL: cfg.LeaseTTL,
		log:      cfg.Client.log,
	}, nil
}

// EnsureIndex creates the index when it does not exist yet.
// Returns true when this call created it.
func (i *Installer) EnsureIndex(ctx context.Context, indexName string, settings, mapping map[string]any) (bool, error) {
	exists, err := i.client.IndexExists(ctx, indexName)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	release, err := i.acquireLease(ctx, "index", indexName)
	if err != nil {
		return false, err
	}
	defer release()

	// Another node may have won the lease race and installed it already.
	exists, err = i.client.IndexExists(ctx, indexName)
	if err != nil || exists {
		return false, err
	}

	if _, err := i.client.CreateIndex(ctx, indexName, settings, mapping); err != nil {
		if isAlreadyExists(err) {
			return false, nil
		}
		return false, err
	}

	i.log.DebugWithCtx(ctx, "installed index", "index", i.client.FormatIndexName(indexName))
	return true, nil
}

// EnsureTemplate creates the template when it does not exist yet.
// Returns true when this call created it.
func (i *Installer) EnsureTemplate(ctx context.Context, templateName string, settings, mapping map[string]any) (bool, error) {
	exists, err := i.client.TemplateExists(ctx, templateName)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	release, err := i.acquireLease(ctx, "template", templateName)
	if err != nil {
		return false, err
	}
	defer release()

	exists, err = i.client.TemplateExists(ctx, templateName)
	if err != nil || exists {
		return false, err
	}

	if err := i.client.CreateTemplate(ctx, templateName, settings, mapping); err != nil {
		return false, err
	}

	i.log.DebugWithCtx(ctx, "installed template", "template", i.client.FormatIndexName(templateName))
	return true, nil
}

// acquireLease takes a SET NX lease on the formatted name, polling until the
// holder releases it or the context expires. Without Redis it is a no-op.
func (i *Installer) acquireLease(ctx context.Context, kind, name string) (func(), error) {
	if i.redis == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf("es_install_%s_%s", kind, i.client.FormatIndexName(name))

	for {
		ok, err := i.redis.SetNX(ctx, key, "1", i.leaseTTL).Result()
		if err != nil {
			return nil, errors.Wrap(err, "failed to acquire install lease")
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = i.redis.Del(ctx, key).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// isAlreadyExists matches the create-index race loser: the winner's index
// shows up between the existence check and the create call.
func isAlreadyExists(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == 400
}
