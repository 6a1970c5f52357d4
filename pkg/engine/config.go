package engine

import (
	"time"

	"github.com/peoplehub/ecsync/pkg/ec"
)

// Config is the top-level structure of the runner config file.
type Config struct {
	// Workers bounds concurrent creation calls within a batch.
	Workers int `json:"workers"`
	// LeaseTTLSeconds is how long the run lease stays valid between renewals.
	LeaseTTLSeconds int `json:"lease_ttl_seconds"`
	// RetainDays is how long finished runs are kept before pruning.
	// Negative disables pruning entirely.
	RetainDays int `json:"retain_days"`
	// ArchiveDir, when set, receives a gzipped document per run before the
	// run is pruned. Empty means runs are deleted without archival.
	ArchiveDir string `json:"archive_dir,omitempty"`
	// DryRun marks runs as rehearsals on the run row.
	DryRun bool `json:"dry_run"`
	// WebhookURLs receive the finished-run payload.
	WebhookURLs []string `json:"webhook_urls,omitempty"`

	EC ECConfig `json:"ec"`
}

// ECConfig holds the Employee Central connection block. The client secret
// is deliberately absent: it comes from the environment, not the file.
type ECConfig struct {
	BaseURL        string `json:"base_url"`
	AuthURL        string `json:"auth_url"`
	ClientID       string `json:"client_id"`
	CompanyID      string `json:"company_id"`
	GrantType      string `json:"grant_type,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	MaxRetries     int    `json:"max_retries,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Normalize fills unset knobs with defaults.
func (c *Config) Normalize() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.LeaseTTLSeconds <= 0 {
		c.LeaseTTLSeconds = 60
	}
	if c.RetainDays == 0 {
		c.RetainDays = 90
	}
}

// LeaseTTL returns the lease lifetime as a duration.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// ClientConfig builds the EC client config, merging in the secret.
func (c ECConfig) ClientConfig(clientSecret string) ec.Config {
	return ec.Config{
		BaseURL:      c.BaseURL,
		AuthURL:      c.AuthURL,
		ClientID:     c.ClientID,
		ClientSecret: clientSecret,
		CompanyID:    c.CompanyID,
		GrantType:    c.GrantType,
		ChunkSize:    c.ChunkSize,
		MaxRetries:   c.MaxRetries,
		Timeout:      time.Duration(c.TimeoutSeconds) * time.Second,
	}
}
