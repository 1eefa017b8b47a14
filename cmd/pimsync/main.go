// Command pimsync is the command-line entry point. It loads the account
// configuration, wires the protocol adapter, storage and services, and
// hands control to the CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	configfile "github.com/custodia-labs/pimsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/pimsync/internal/adapters/driven/etebase"
	"github.com/custodia-labs/pimsync/internal/adapters/driven/journal"
	secretsfile "github.com/custodia-labs/pimsync/internal/adapters/driven/secrets/file"
	"github.com/custodia-labs/pimsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/pimsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
	"github.com/custodia-labs/pimsync/internal/core/services"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// appConfig is the account configuration read from config.toml.
type appConfig struct {
	Server   string `toml:"server"`
	Username string `toml:"username"`
	Protocol int    `toml:"protocol"`
}

func main() {
	configDir := os.Getenv("PIMSYNC_CONFIG_DIR")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: cannot determine home directory:", err)
			os.Exit(1)
		}
		configDir = filepath.Join(home, ".pimsync")
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: loading config:", err)
		os.Exit(1)
	}

	// With no account configured only configuration-free commands
	// (version, help) work; everything else reports its missing service.
	if cfg != nil {
		if err := wireServices(configDir, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("No account configured; create %s", filepath.Join(configDir, "config.toml"))
	}

	cli.Execute()
}

// loadConfig reads config.toml, returning nil when the file does not
// exist yet.
func loadConfig(configDir string) (*appConfig, error) {
	data, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cfg appConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Protocol == 0 {
		cfg.Protocol = int(domain.ProtocolEtebase)
	}
	return &cfg, nil
}

// wireServices builds the adapter stack for the configured account and
// injects it into the CLI.
func wireServices(configDir string, cfg *appConfig) error {
	account := domain.Account{
		Username:  cfg.Username,
		ServerURL: cfg.Server,
		Protocol:  domain.ProtocolVersion(cfg.Protocol),
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account configuration: %w", err)
	}

	// Protocol adapter: both implementations satisfy all three ports.
	var (
		auth      driven.Authenticator
		remoteLog driven.RemoteLog
		dirClient driven.DirectoryClient
	)
	switch account.Protocol {
	case domain.ProtocolJournal:
		client, err := journal.NewClient(account.ServerURL)
		if err != nil {
			return err
		}
		auth, remoteLog, dirClient = client, client, client
	case domain.ProtocolEtebase:
		client, err := etebase.NewClient(account.ServerURL)
		if err != nil {
			return err
		}
		auth, remoteLog, dirClient = client, client, client
	default:
		return fmt.Errorf("unsupported protocol version %d", cfg.Protocol)
	}

	secrets, err := secretsfile.NewSecretStore(configDir)
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}
	registry, err := configfile.NewRegistry(configDir)
	if err != nil {
		return fmt.Errorf("opening collection registry: %w", err)
	}
	cache, err := sqlite.NewStore(filepath.Join(configDir, "data"))
	if err != nil {
		return fmt.Errorf("opening item cache: %w", err)
	}

	pool := services.NewSessionPool()
	session, err := pool.Acquire(account, auth, secrets, nil)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	directory := services.NewDirectory(session, dirClient, registry, cache)

	// Engines are cached per collection so staged push output survives
	// across commands within one process.
	var (
		mu      sync.Mutex
		engines = make(map[string]*services.CollectionEngine)
	)
	engineFor := func(entry domain.RegistryEntry) (driving.SyncEngine, error) {
		mu.Lock()
		defer mu.Unlock()
		if e, ok := engines[entry.CollectionID]; ok {
			return e, nil
		}
		e := services.NewCollectionEngine(
			entry.CollectionID, entry.Type, session, remoteLog, cache, registry)
		engines[entry.CollectionID] = e
		return e, nil
	}

	cli.SetServices(cli.Services{
		Account:   account,
		Session:   session,
		Directory: directory,
		Registry:  registry,
		EngineFor: engineFor,
	})
	return nil
}
