package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mazrean/splunkmcp/internal/metadata"
	"github.com/mazrean/splunkmcp/internal/pkg/json"
	"github.com/mazrean/splunkmcp/internal/search"
	"github.com/mazrean/splunkmcp/log"
	"github.com/mazrean/splunkmcp/protocol"
)

const (
	ServerName      = "SplunkMCP"
	ProtocolVersion = "2024-11-05"

	MetadataURI = "splunk://metadata"

	ToolAskSplunk           = "askSplunk"
	ToolDescribeEnvironment = "describeEnvironment"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// SnapshotProvider returns the latest published metadata snapshot
type SnapshotProvider interface {
	Snapshot() *metadata.Snapshot
}

type Translator interface {
	Translate(question string, snapshot *metadata.Snapshot) string
}

type Searcher interface {
	Run(ctx context.Context, query, earliest, latest string) (*search.Job, error)
}

var tools = []protocol.Tool{
	{
		Name:        ToolAskSplunk,
		Description: "Ask a question in English, runs translated SPL in Splunk",
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.Property{
				"question": {Type: "string", Description: "question about the Splunk data"},
			},
			Required: []string{"question"},
		},
	},
	{
		Name:        ToolDescribeEnvironment,
		Description: "Summarize Splunk environment (indexes, apps, datamodels)",
		InputSchema: protocol.InputSchema{
			Type:       "object",
			Properties: map[string]protocol.Property{},
		},
	},
}

var resources = []protocol.Resource{
	{
		URI:         MetadataURI,
		Name:        "Splunk Metadata",
		Description: "indexes, data models and apps of the connected Splunk instance",
		MimeType:    "application/json",
	},
}

// SplunkMCP implements the protocol methods on top of the metadata cache,
// the query translator and the search engine.
type SplunkMCP struct {
	logger     log.Logger
	snapshots  SnapshotProvider
	translator Translator
	searcher   Searcher
	version    string
	earliest   string
	latest     string

	askCount      uint64
	describeCount uint64
	failedCount   uint64
	timeoutCount  uint64
}

type splunkMCPOption struct {
	version  string
	earliest string
	latest   string
}

type SplunkMCPOption func(*splunkMCPOption)

func WithVersion(version string) SplunkMCPOption {
	return func(o *splunkMCPOption) {
		o.version = version
	}
}

// WithSearchWindow sets the time range applied to every askSplunk search
func WithSearchWindow(earliest, latest string) SplunkMCPOption {
	return func(o *splunkMCPOption) {
		o.earliest = earliest
		o.latest = latest
	}
}

func NewSplunkMCP(logger log.Logger, snapshots SnapshotProvider, translator Translator, searcher Searcher, options ...SplunkMCPOption) *SplunkMCP {
	o := &splunkMCPOption{
		version:  "dev",
		earliest: "-24h",
		latest:   "now",
	}
	for _, option := range options {
		option(o)
	}

	return &SplunkMCP{
		logger:     logger,
		snapshots:  snapshots,
		translator: translator,
		searcher:   searcher,
		version:    o.version,
		earliest:   o.earliest,
		latest:     o.latest,
	}
}

func (s *SplunkMCP) Initialize(_ context.Context, _ *protocol.Request, res *protocol.Response) error {
	res.Result = protocol.InitializeResult{
		Name:            ServerName,
		Version:         s.version,
		ProtocolVersion: ProtocolVersion,
		ServerInfo: protocol.ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
		Capabilities: protocol.Capabilities{
			Resources: &struct{}{},
			Tools:     &struct{}{},
		},
	}

	return nil
}

func (s *SplunkMCP) ListResources(_ context.Context, _ *protocol.Request, res *protocol.Response) error {
	res.Result = protocol.ListResourcesResult{Resources: resources}
	return nil
}

func (s *SplunkMCP) ReadResource(_ context.Context, req *protocol.Request, res *protocol.Response) error {
	var params protocol.ReadResourceParams
	if err := req.DecodeParams(&params); err != nil {
		return err
	}

	if params.URI != MetadataURI {
		return rpcError(fmt.Errorf("%w: %q", ErrResourceNotFound, params.URI))
	}

	res.Result = protocol.ReadResourceResult{
		Contents: []protocol.ResourceContent{{
			URI:      MetadataURI,
			Type:     protocol.ContentTypeJSON,
			MimeType: "application/json",
			JSON:     s.snapshots.Snapshot(),
		}},
	}

	return nil
}

func (s *SplunkMCP) ListTools(_ context.Context, _ *protocol.Request, res *protocol.Response) error {
	res.Result = protocol.ListToolsResult{Tools: tools}
	return nil
}

func (s *SplunkMCP) CallTool(ctx context.Context, req *protocol.Request, res *protocol.Response) error {
	var params protocol.CallToolParams
	if err := req.DecodeParams(&params); err != nil {
		return err
	}

	var (
		result *protocol.CallToolResult
		err    error
	)
	switch params.Name {
	case ToolAskSplunk:
		result, err = s.askSplunk(ctx, params.Arguments)
	case ToolDescribeEnvironment:
		result = s.describeEnvironment()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownTool, params.Name)
	}
	if err != nil {
		return rpcError(err)
	}

	res.Result = result

	return nil
}

type askSplunkArguments struct {
	Question string `json:"question"`
}

func (s *SplunkMCP) askSplunk(ctx context.Context, rawArgs json.RawMessage) (*protocol.CallToolResult, error) {
	atomic.AddUint64(&s.askCount, 1)

	var args askSplunkArguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}
	if strings.TrimSpace(args.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidArguments)
	}

	query := s.translator.Translate(args.Question, s.snapshots.Snapshot())
	s.logger.Infof("translated %q to %q", args.Question, query)

	job, err := s.searcher.Run(ctx, query, s.earliest, s.latest)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrSearchTimeout):
			atomic.AddUint64(&s.timeoutCount, 1)
		case errors.Is(err, search.ErrSearchFailed):
			atomic.AddUint64(&s.failedCount, 1)
		}
		return nil, fmt.Errorf("run %q: %w", query, err)
	}
	s.logger.Debugf("job %s completed after %d polls with %d records", job.SID, job.Polls, len(job.Records))

	records := job.Records
	if records == nil {
		records = []json.RawMessage{}
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			{Type: protocol.ContentTypeText, Text: "Translated SPL: " + query},
			{Type: protocol.ContentTypeJSON, JSON: records},
		},
	}, nil
}

func (s *SplunkMCP) describeEnvironment() *protocol.CallToolResult {
	atomic.AddUint64(&s.describeCount, 1)

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			{Type: protocol.ContentTypeJSON, JSON: s.snapshots.Snapshot()},
		},
	}
}

// rpcError maps domain errors onto protocol errors.
// Errors it does not know are passed through and reported as internal errors.
func rpcError(err error) error {
	var rpcErr *protocol.Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, ErrResourceNotFound):
		return protocol.NewError(protocol.CodeResourceNotFound, protocol.KindResourceNotFound, "%v", err)
	case errors.Is(err, ErrUnknownTool):
		return protocol.NewError(protocol.CodeInvalidParams, protocol.KindUnknownTool, "%v", err)
	case errors.Is(err, ErrInvalidArguments):
		return protocol.NewError(protocol.CodeInvalidParams, protocol.KindInvalidParams, "%v", err)
	case errors.Is(err, search.ErrSearchTimeout):
		return protocol.NewError(protocol.CodeSearchTimeout, protocol.KindSearchTimeout, "%v", err)
	case errors.Is(err, search.ErrSearchFailed):
		return protocol.NewError(protocol.CodeSearchFailed, protocol.KindSearchFailed, "%v", err)
	default:
		return err
	}
}

func (s *SplunkMCP) Close(context.Context) error {
	s.logger.Infof("askSplunk call count: %d", atomic.LoadUint64(&s.askCount))
	s.logger.Infof("describeEnvironment call count: %d", atomic.LoadUint64(&s.describeCount))
	s.logger.Infof("search failed count: %d", atomic.LoadUint64(&s.failedCount))
	s.logger.Infof("search timeout count: %d", atomic.LoadUint64(&s.timeoutCount))
	return nil
}
