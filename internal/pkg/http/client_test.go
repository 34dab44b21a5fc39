package http

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		options     []ClientOption
		wantSkip    bool
		wantTimeout time.Duration
	}{
		{
			name:        "default verifies certificates",
			wantTimeout: requestTimeout,
		},
		{
			name:        "insecure skip verify",
			options:     []ClientOption{WithInsecureSkipVerify(true)},
			wantSkip:    true,
			wantTimeout: requestTimeout,
		},
		{
			name:        "custom timeout",
			options:     []ClientOption{WithRequestTimeout(5 * time.Second)},
			wantTimeout: 5 * time.Second,
		},
		{
			name:        "non-positive timeout ignored",
			options:     []ClientOption{WithRequestTimeout(0)},
			wantTimeout: requestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewClient(tt.options...)
			if client.Timeout != tt.wantTimeout {
				t.Errorf("timeout = %v, want %v", client.Timeout, tt.wantTimeout)
			}

			transport, ok := client.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("unexpected transport type %T", client.Transport)
			}

			skip := transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify
			if skip != tt.wantSkip {
				t.Errorf("InsecureSkipVerify = %t, want %t", skip, tt.wantSkip)
			}
		})
	}
}
