// Package splunk is a minimal client of the Splunk management REST API.
// It covers the inventory endpoints read at startup and the search job endpoints.
package splunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	myhttp "github.com/mazrean/splunkmcp/internal/pkg/http"
	"github.com/mazrean/splunkmcp/internal/pkg/json"
	"github.com/mazrean/splunkmcp/internal/pkg/metrics"
	"github.com/mazrean/splunkmcp/log"
	"golang.org/x/oauth2"
)

var apiLatencyGauge = metrics.NewGauge("splunk_api_latency")

var (
	// ErrMissingCredential is returned by every call when no bearer token is configured
	ErrMissingCredential = errors.New("splunk bearer token is not configured")
)

// Message is an entry of the messages array Splunk attaches to errors and jobs.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// APIError is a non-2xx response of the Splunk API
type APIError struct {
	StatusCode int
	Messages   []Message
}

func (e *APIError) Error() string {
	texts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		texts = append(texts, m.Text)
	}
	if len(texts) == 0 {
		return fmt.Sprintf("splunk api: status %d", e.StatusCode)
	}

	return fmt.Sprintf("splunk api: status %d: %s", e.StatusCode, strings.Join(texts, "; "))
}

// IsStatus reports whether err is an APIError with one of the given status codes.
func IsStatus(err error, codes ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.StatusCode == code {
			return true
		}
	}

	return false
}

type Client struct {
	logger        log.Logger
	httpClient    *http.Client
	baseTransport *http.Transport
	baseURL       *url.URL
	hasCredential bool
}

type clientOption struct {
	httpOptions []myhttp.ClientOption
	baseClient  *http.Client
}

type ClientOption func(*clientOption)

// WithHTTPOptions passes options to the underlying HTTP client
func WithHTTPOptions(options ...myhttp.ClientOption) ClientOption {
	return func(o *clientOption) {
		o.httpOptions = append(o.httpOptions, options...)
	}
}

// WithBaseClient replaces the underlying HTTP client, e.g. with an httptest server client
func WithBaseClient(client *http.Client) ClientOption {
	return func(o *clientOption) {
		o.baseClient = client
	}
}

// NewClient creates a client of the Splunk API at strBaseURL authenticating with token.
// An empty token is accepted; every call then fails with ErrMissingCredential.
func NewClient(logger log.Logger, strBaseURL, token string, options ...ClientOption) (*Client, error) {
	o := &clientOption{}
	for _, option := range options {
		option(o)
	}

	baseURL, err := url.Parse(strBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	baseClient := o.baseClient
	if baseClient == nil {
		baseClient = myhttp.NewClient(o.httpOptions...)
	}
	baseTransport, _ := baseClient.Transport.(*http.Transport)

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
	}))
	httpClient.Timeout = baseClient.Timeout

	return &Client{
		logger:        logger,
		httpClient:    httpClient,
		baseTransport: baseTransport,
		baseURL:       baseURL,
		hasCredential: token != "",
	}, nil
}

// Close releases idle connections
func (c *Client) Close(context.Context) error {
	if c.baseTransport != nil {
		c.baseTransport.CloseIdleConnections()
	}

	return nil
}

type errorBody struct {
	Messages []Message `json:"messages"`
}

// do sends a request to the endpoint at path and decodes a JSON response into respBody.
// It returns the status code; 204 responses leave respBody untouched.
func (c *Client) do(ctx context.Context, method string, path []string, query url.Values, form url.Values, respBody any) (int, error) {
	if !c.hasCredential {
		return 0, ErrMissingCredential
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("output_mode", "json")

	u := c.baseURL.JoinPath(path...)
	u.RawQuery = query.Encode()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debugf("splunk request: %s %s", method, u.Path)

	var res *http.Response
	apiLatencyGauge.Stopwatch(func() {
		res, err = c.httpClient.Do(req)
	}, u.Path)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var eb errorBody
		if err := json.NewDecoder(res.Body).Decode(&eb); err == nil {
			apiErr.Messages = eb.Messages
		}
		return res.StatusCode, apiErr
	}

	if res.StatusCode == http.StatusNoContent || respBody == nil {
		return res.StatusCode, nil
	}

	err = json.NewDecoder(res.Body).Decode(respBody)
	if err != nil {
		return res.StatusCode, fmt.Errorf("decode response body: %w", err)
	}

	return res.StatusCode, nil
}

// entryList is the envelope of Splunk collection endpoints
type entryList[T any] struct {
	Entry []struct {
		Name    string `json:"name"`
		Content T      `json:"content"`
	} `json:"entry"`
}

func (c *Client) names(ctx context.Context, path ...string) ([]string, error) {
	var list entryList[json.RawMessage]
	_, err := c.do(ctx, http.MethodGet, path, url.Values{"count": {"0"}}, nil, &list)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list.Entry))
	for _, e := range list.Entry {
		names = append(names, e.Name)
	}

	return names, nil
}

// Indexes lists the index names visible to the token
func (c *Client) Indexes(ctx context.Context) ([]string, error) {
	names, err := c.names(ctx, "services", "data", "indexes")
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}

	return names, nil
}

// Apps lists the installed application names
func (c *Client) Apps(ctx context.Context) ([]string, error) {
	names, err := c.names(ctx, "services", "apps", "local")
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	return names, nil
}

// DataModel is a data model definition and its objects as served by Splunk
type DataModel struct {
	Name    string
	Objects []json.RawMessage
}

type dataModelContent struct {
	Objects []json.RawMessage `json:"objects"`
	EAIData string            `json:"eai:data"`
}

// DataModels lists the data models in server order.
// Objects come from content.objects, or from the JSON document in content."eai:data".
func (c *Client) DataModels(ctx context.Context) ([]DataModel, error) {
	var list entryList[dataModelContent]
	_, err := c.do(ctx, http.MethodGet, []string{"services", "datamodel", "model"}, url.Values{"count": {"0"}}, nil, &list)
	if err != nil {
		return nil, fmt.Errorf("list data models: %w", err)
	}

	models := make([]DataModel, 0, len(list.Entry))
	for _, e := range list.Entry {
		objects := e.Content.Objects
		if objects == nil && e.Content.EAIData != "" {
			var def struct {
				Objects []json.RawMessage `json:"objects"`
			}
			if err := json.Unmarshal([]byte(e.Content.EAIData), &def); err != nil {
				return nil, fmt.Errorf("parse data model %s definition: %w", e.Name, err)
			}
			objects = def.Objects
		}
		if objects == nil {
			objects = []json.RawMessage{}
		}

		models = append(models, DataModel{Name: e.Name, Objects: objects})
	}

	return models, nil
}
