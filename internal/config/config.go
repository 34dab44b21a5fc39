package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
)

const configFileName = ".splunkmcp.json"

type Config struct {
	Version  kong.VersionFlag `kong:"short='v',help='Show version and exit.'"`
	LogLevel string           `kong:"short='l',default='info',enum='debug,info,warn,error,silent',help='Log level',env='SPLUNKMCP_LOG_LEVEL'"`
	Splunk   struct {
		URL                string        `kong:"default='https://splunk.example.com:8089',help='Splunk management API base URL',env='SPLUNK_URL'"`
		Token              string        `kong:"help='Splunk bearer token',env='SPLUNK_TOKEN'"`
		InsecureSkipVerify bool          `kong:"help='Disable TLS certificate verification for the Splunk API',env='SPLUNK_INSECURE_SKIP_VERIFY'"`
		RequestTimeout     time.Duration `kong:"default='60s',help='Timeout of a single Splunk API request',env='SPLUNKMCP_REQUEST_TIMEOUT'"`
	} `kong:"group='splunk',embed,prefix='splunk.'"`
	Search struct {
		PollInterval time.Duration `kong:"default='1s',help='Interval between search job polls',env='SPLUNKMCP_SEARCH_POLL_INTERVAL'"`
		MaxWait      time.Duration `kong:"default='2m',help='Maximum time to wait for a search job',env='SPLUNKMCP_SEARCH_MAX_WAIT'"`
		ResultCount  int           `kong:"default='20',help='Maximum number of results returned per search',env='SPLUNKMCP_SEARCH_RESULT_COUNT'"`
		Earliest     string        `kong:"default='-24h',help='Earliest time of the search range',env='SPLUNKMCP_SEARCH_EARLIEST'"`
		Latest       string        `kong:"default='now',help='Latest time of the search range',env='SPLUNKMCP_SEARCH_LATEST'"`
	} `kong:"group='search',embed,prefix='search.'"`
	Metadata struct {
		Retries         uint64        `kong:"default='3',help='Retries of the metadata load before giving up',env='SPLUNKMCP_METADATA_RETRIES'"`
		RefreshInterval time.Duration `kong:"default='0s',help='Interval of background metadata reloads (0 disables)',env='SPLUNKMCP_METADATA_REFRESH_INTERVAL'"`
	} `kong:"group='metadata',embed,prefix='metadata.'"`
}

type Version struct {
	Version  string
	Revision string
}

// Paths returns the configuration files looked up by default,
// in the working directory and in the user home directory
func Paths() []string {
	var configPaths []string
	if wd, err := os.Getwd(); err == nil {
		configPaths = append(configPaths, filepath.Join(wd, configFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		configPaths = append(configPaths, filepath.Join(home, configFileName))
	}

	return configPaths
}

// Parse fills target from args, environment variables and the given JSON configuration files.
// target is usually a struct embedding Config.
func Parse(target any, version Version, args []string, configPaths ...string) (*kong.Context, error) {
	parser, err := kong.New(target,
		kong.Name("splunkmcp"),
		kong.Description("A JSON-RPC tool server answering questions with Splunk searches"),
		kong.Configuration(kong.JSON, configPaths...),
		kong.Vars{"version": fmt.Sprintf("%s (%s)", version.Version, version.Revision)},
		kong.UsageOnError(),
	)
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return ctx, nil
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks values kong cannot check by itself.
// A missing token is not a configuration error: it surfaces when the backend is first used.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Splunk.URL)
	if err != nil {
		return fmt.Errorf("%w: parse splunk url: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: splunk url must be http or https: %s", ErrInvalidConfig, c.Splunk.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: splunk url has no host: %s", ErrInvalidConfig, c.Splunk.URL)
	}

	if c.Search.PollInterval <= 0 {
		return fmt.Errorf("%w: search poll interval must be positive", ErrInvalidConfig)
	}
	if c.Search.MaxWait < c.Search.PollInterval {
		return fmt.Errorf("%w: search max wait(%s) is shorter than poll interval(%s)", ErrInvalidConfig, c.Search.MaxWait, c.Search.PollInterval)
	}
	if c.Search.ResultCount <= 0 {
		return fmt.Errorf("%w: search result count must be positive", ErrInvalidConfig)
	}
	if c.Metadata.RefreshInterval < 0 {
		return fmt.Errorf("%w: metadata refresh interval must not be negative", ErrInvalidConfig)
	}

	return nil
}
