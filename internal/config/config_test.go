package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func parseConfig(t *testing.T, args []string, configPaths ...string) *Config {
	t.Helper()

	c := &Config{}
	if _, err := Parse(c, Version{Version: "test", Revision: "none"}, args, configPaths...); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	return c
}

func TestParse_defaults(t *testing.T) {
	c := parseConfig(t, []string{})

	if diff := cmp.Diff("https://splunk.example.com:8089", c.Splunk.URL); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}
	if c.Splunk.InsecureSkipVerify {
		t.Error("certificate verification must be enabled by default")
	}
	if c.Search.PollInterval != time.Second {
		t.Errorf("poll interval = %s, want 1s", c.Search.PollInterval)
	}
	if c.Search.MaxWait != 2*time.Minute {
		t.Errorf("max wait = %s, want 2m", c.Search.MaxWait)
	}
	if c.Search.ResultCount != 20 {
		t.Errorf("result count = %d, want 20", c.Search.ResultCount)
	}
	if c.Search.Earliest != "-24h" || c.Search.Latest != "now" {
		t.Errorf("time range = %s..%s, want -24h..now", c.Search.Earliest, c.Search.Latest)
	}
	if c.Metadata.Retries != 3 {
		t.Errorf("metadata retries = %d, want 3", c.Metadata.Retries)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParse_env(t *testing.T) {
	t.Setenv("SPLUNK_URL", "https://splunk.internal:8089")
	t.Setenv("SPLUNK_TOKEN", "secret")
	t.Setenv("SPLUNK_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("SPLUNKMCP_SEARCH_MAX_WAIT", "30s")

	c := parseConfig(t, []string{"--log-level", "debug"})

	if c.Splunk.URL != "https://splunk.internal:8089" {
		t.Errorf("url = %s", c.Splunk.URL)
	}
	if c.Splunk.Token != "secret" {
		t.Errorf("token = %q, want %q", c.Splunk.Token, "secret")
	}
	if !c.Splunk.InsecureSkipVerify {
		t.Error("insecure skip verify not read from environment")
	}
	if c.Search.MaxWait != 30*time.Second {
		t.Errorf("max wait = %s, want 30s", c.Search.MaxWait)
	}
	if c.LogLevel != "debug" {
		t.Errorf("log level = %s, want debug", c.LogLevel)
	}
}

func TestParse_configFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, c *Config)
	}{
		{
			name:    "top level key",
			content: `{"log_level": "warn"}`,
			check: func(t *testing.T, c *Config) {
				if c.LogLevel != "warn" {
					t.Errorf("log level = %s, want warn", c.LogLevel)
				}
			},
		},
		{
			name:    "grouped keys",
			content: `{"search": {"max_wait": "30s", "result_count": 5}, "splunk": {"url": "https://splunk.internal:8089"}}`,
			check: func(t *testing.T, c *Config) {
				if c.Search.MaxWait != 30*time.Second {
					t.Errorf("max wait = %s, want 30s", c.Search.MaxWait)
				}
				if c.Search.ResultCount != 5 {
					t.Errorf("result count = %d, want 5", c.Search.ResultCount)
				}
				if c.Splunk.URL != "https://splunk.internal:8089" {
					t.Errorf("url = %s", c.Splunk.URL)
				}
				if c.LogLevel != "info" {
					t.Errorf("log level = %s, want default info", c.LogLevel)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), configFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write config file: %v", err)
			}

			tt.check(t, parseConfig(t, []string{}, path))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		c := &Config{}
		c.Splunk.URL = "https://splunk.example.com:8089"
		c.Search.PollInterval = time.Second
		c.Search.MaxWait = time.Minute
		c.Search.ResultCount = 20
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid",
			modify: func(*Config) {},
		},
		{
			name: "missing token is allowed",
			modify: func(c *Config) {
				c.Splunk.Token = ""
			},
		},
		{
			name: "non http scheme",
			modify: func(c *Config) {
				c.Splunk.URL = "ftp://splunk.example.com"
			},
			wantErr: true,
		},
		{
			name: "no host",
			modify: func(c *Config) {
				c.Splunk.URL = "https://"
			},
			wantErr: true,
		},
		{
			name: "zero poll interval",
			modify: func(c *Config) {
				c.Search.PollInterval = 0
			},
			wantErr: true,
		},
		{
			name: "max wait shorter than poll interval",
			modify: func(c *Config) {
				c.Search.MaxWait = 500 * time.Millisecond
			},
			wantErr: true,
		},
		{
			name: "zero result count",
			modify: func(c *Config) {
				c.Search.ResultCount = 0
			},
			wantErr: true,
		},
		{
			name: "negative refresh interval",
			modify: func(c *Config) {
				c.Metadata.RefreshInterval = -time.Second
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.modify(c)

			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
