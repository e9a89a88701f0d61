package commands

import (
	"context"
	"fmt"

	"github.com/ets-berkeley-edu/myberkeley/internal/config"
	"github.com/ets-berkeley-edu/myberkeley/provision"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/badgerstore"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
	"github.com/ets-berkeley-edu/myberkeley/search"
	"github.com/ets-berkeley-edu/myberkeley/search/solr"
)

func openRepository(c config.RepositoryConfig) (repository.Repository, error) {
	switch c.Backend {
	case "", "memory":
		logger.Warn("using the in-memory repository, nothing will be persisted")
		return memory.New(), nil
	case "badger":
		bc := badgerstore.DefaultConfig(c.Path)
		bc.Logger = logger.With("component", "badger")
		store, err := badgerstore.Open(bc)
		if err != nil {
			return nil, fmt.Errorf("failed to open repository: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown repository backend %q", c.Backend)
}

// openIndex returns nil when no Solr core is configured.
func openIndex(c config.SolrConfig) (search.Index, error) {
	if c.URL == "" {
		return nil, nil
	}
	client, err := solr.New(c.URL, c.Timeout, logger.With("component", "solr"))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openPeople connects to the data warehouse. The returned closer is never nil.
func openPeople(ctx context.Context, c config.OracleConfig) (provision.PersonAttributeProvider, func(), error) {
	if !c.Enabled() {
		return nil, func() {}, nil
	}
	dsn := c.DSN
	if dsn == "" {
		dsn = provision.OracleURL(c.Server, c.Port, c.Service, c.User, c.Password)
	}
	db, err := provision.OpenOracle(ctx, dsn)
	if err != nil {
		return nil, func() {}, err
	}
	closer := func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close oracle connection", "error", err)
		}
	}
	return provision.NewOraclePersonAttributeProvider(db, logger.With("component", "oracle")), closer, nil
}

func closeRepository(repo repository.Repository) {
	if err := repo.Close(); err != nil {
		logger.Error("failed to close repository", "error", err)
	}
}
