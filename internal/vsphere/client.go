// Package vsphere talks to the virtualization management endpoint: it
// authenticates a govmomi session, collects the capacity snapshot the
// planner consumes, and creates or destroys virtual disks for accepted
// plans.
package vsphere

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/soap"
	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/config"
)

// Client wraps an authenticated govmomi session.
type Client struct {
	*govmomi.Client
	logger *zap.Logger
}

// NewClient connects and authenticates against the configured endpoint.
// Authentication and certificate failures here are fatal for the session;
// there is no degraded mode without a management connection.
func NewClient(ctx context.Context, cfg config.VSphereConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("vsphere host is not configured")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("vsphere credentials are not configured")
	}

	u, err := soap.ParseURL("https://" + cfg.Host + vim25.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	u.User = url.UserPassword(cfg.Username, cfg.Password)

	vc, err := govmomi.NewClient(ctx, u, cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Host, err)
	}

	logger.Info("Connected to vSphere endpoint",
		zap.String("host", cfg.Host),
		zap.String("api_version", vc.ServiceContent.About.ApiVersion),
	)

	return &Client{
		Client: vc,
		logger: logger.With(zap.String("component", "vsphere")),
	}, nil
}

// Close logs the session out.
func (c *Client) Close(ctx context.Context) {
	if err := c.Logout(ctx); err != nil {
		c.logger.Warn("Logout failed", zap.Error(err))
	}
}
