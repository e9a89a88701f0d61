package caldav

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

// ProviderConfig selects and configures the calendar backend.
type ProviderConfig struct {
	AdminUsername string
	AdminPassword string
	ServerRoot    string
	Timeout       time.Duration
	// Embedded keeps calendars in the content repository instead of Bedework.
	Embedded bool
	// EmbeddedSearch searches the embedded store through the index.
	EmbeddedSearch bool
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// ConnectorProvider builds connectors from a ProviderConfig.
type ConnectorProvider struct {
	cfg      ProviderConfig
	repo     repository.Repository
	searcher search.Searcher
	logger   *slog.Logger
}

var _ Provider = (*ConnectorProvider)(nil)

// NewProvider creates a provider. repo is required for the embedded stores and
// searcher for the indexed one.
func NewProvider(cfg ProviderConfig, repo repository.Repository, searcher search.Searcher, logger *slog.Logger) (*ConnectorProvider, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Embedded && repo == nil {
		return nil, fmt.Errorf("embedded calendar store requires a repository")
	}
	if cfg.Embedded && cfg.EmbeddedSearch && searcher == nil {
		return nil, fmt.Errorf("embedded calendar search requires a searcher")
	}
	return &ConnectorProvider{cfg: cfg, repo: repo, searcher: searcher, logger: logger}, nil
}

func (p *ConnectorProvider) AdminConnector(owner string) (Connector, error) {
	if p.cfg.Embedded {
		return p.embedded(owner), nil
	}
	return NewBedeworkConnector(BedeworkConfig{
		Username:   p.cfg.AdminUsername,
		Password:   p.cfg.AdminPassword,
		ServerRoot: p.cfg.ServerRoot,
		Owner:      owner,
		Timeout:    p.cfg.Timeout,
		Transport:  p.cfg.Transport,
	}, p.logger)
}

func (p *ConnectorProvider) Connector(username, password string) (Connector, error) {
	if p.cfg.Embedded {
		return p.embedded(username), nil
	}
	return NewBedeworkConnector(BedeworkConfig{
		Username:   username,
		Password:   password,
		ServerRoot: p.cfg.ServerRoot,
		Owner:      username,
		Timeout:    p.cfg.Timeout,
		Transport:  p.cfg.Transport,
	}, p.logger)
}

func (p *ConnectorProvider) embedded(owner string) Connector {
	if p.cfg.EmbeddedSearch {
		return NewEmbeddedSearchStore(owner, p.repo, p.searcher, p.logger)
	}
	return NewEmbeddedStore(owner, p.repo, p.logger)
}
