package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mazrean/splunkmcp/internal/pkg/json"
	"github.com/mazrean/splunkmcp/internal/pkg/log"
)

// Logger defines the interface for logging operations used throughout the protocol
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Handler fills res for req. A returned *Error is sent to the client as is,
// any other error is reported as an internal error.
type Handler func(ctx context.Context, req *Request, res *Response) error

// Process serves JSON-RPC requests read one per line.
//
// Requests are handled strictly in the order they are read: the response
// to a request is written and flushed before the next line is read.
type Process struct {
	initializeHandler    Handler
	listResourcesHandler Handler
	readResourceHandler  Handler
	listToolsHandler     Handler
	callToolHandler      Handler
	closeHandler         func(context.Context) error
	logger               Logger
}

type processOption struct {
	initializeHandler    Handler
	listResourcesHandler Handler
	readResourceHandler  Handler
	listToolsHandler     Handler
	callToolHandler      Handler
	closeHandler         func(context.Context) error
	logger               Logger
}

// ProcessOption defines a function type for configuring Process instances
type ProcessOption func(*processOption)

// WithInitializeHandler sets the handler for MethodInitialize
func WithInitializeHandler(handler Handler) ProcessOption {
	return func(o *processOption) {
		o.initializeHandler = handler
	}
}

// WithListResourcesHandler sets the handler for MethodListResources
func WithListResourcesHandler(handler Handler) ProcessOption {
	return func(o *processOption) {
		o.listResourcesHandler = handler
	}
}

// WithReadResourceHandler sets the handler for MethodReadResource
func WithReadResourceHandler(handler Handler) ProcessOption {
	return func(o *processOption) {
		o.readResourceHandler = handler
	}
}

// WithListToolsHandler sets the handler for MethodListTools
func WithListToolsHandler(handler Handler) ProcessOption {
	return func(o *processOption) {
		o.listToolsHandler = handler
	}
}

// WithCallToolHandler sets the handler for MethodCallTool
func WithCallToolHandler(handler Handler) ProcessOption {
	return func(o *processOption) {
		o.callToolHandler = handler
	}
}

// WithCloseHandler sets the handler called once the input stream ends.
// The handler is called at most once.
func WithCloseHandler(handler func(context.Context) error) ProcessOption {
	return func(o *processOption) {
		var (
			once sync.Once
			err  error
		)
		o.closeHandler = func(ctx context.Context) error {
			once.Do(func() {
				err = handler(ctx)
			})
			return err
		}
	}
}

// WithLogger sets the logger instance for the Process
func WithLogger(logger Logger) ProcessOption {
	return func(o *processOption) {
		o.logger = logger
	}
}

// NewProcess creates a new Process instance with the given options
func NewProcess(options ...ProcessOption) *Process {
	o := &processOption{
		logger: log.NewLogger(log.Info),
	}
	for _, option := range options {
		option(o)
	}

	return &Process{
		initializeHandler:    o.initializeHandler,
		listResourcesHandler: o.listResourcesHandler,
		readResourceHandler:  o.readResourceHandler,
		listToolsHandler:     o.listToolsHandler,
		callToolHandler:      o.callToolHandler,
		closeHandler:         o.closeHandler,
		logger:               o.logger,
	}
}

// Run reads requests from stdin and writes responses to stdout until stdin is closed
// or ctx is canceled.
func (p *Process) Run(ctx context.Context) error {
	return p.run(ctx, os.Stdout, os.Stdin)
}

func (p *Process) run(ctx context.Context, w io.Writer, r io.Reader) (err error) {
	defer func() {
		deferErr := p.close(ctx)
		if deferErr != nil {
			if err == nil {
				err = deferErr
			} else {
				err = errors.Join(err, deferErr)
			}
		}
	}()

	p.logger.Debugf("known methods: %v", p.knownMethods())

	// unblock a pending read once ctx is done
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = c.Close()
		})
		defer stop()
	}

	bw := bufio.NewWriter(w)
	encoder := json.NewEncoder(bw)

	err = p.decodeWorker(ctx, r, func(ctx context.Context, req *Request) error {
		if req.IsNotification() {
			p.logger.Debugf("notification(%s) received", req.Method)
			return nil
		}

		return p.encode(bw, encoder, p.respond(ctx, req))
	})
	if err != nil {
		err = fmt.Errorf("decode worker: %w", err)
		return
	}

	return
}

// knownMethods returns the methods supported by this Process instance
func (p *Process) knownMethods() []Method {
	methods := make([]Method, 0, 6)

	if p.initializeHandler != nil {
		methods = append(methods, MethodInitialize)
	}
	if p.listResourcesHandler != nil {
		methods = append(methods, MethodListResources)
	}
	if p.readResourceHandler != nil {
		methods = append(methods, MethodReadResource)
	}
	if p.listToolsHandler != nil {
		methods = append(methods, MethodListTools)
	}
	if p.callToolHandler != nil {
		methods = append(methods, MethodCallTool)
	}

	// Always support ping
	methods = append(methods, MethodPing)

	return methods
}

// respond runs the handler for req and builds its response
func (p *Process) respond(ctx context.Context, req *Request) *Response {
	res := &Response{}
	err := p.handle(ctx, req, res)
	if err != nil {
		p.logger.Errorf("handle request(method=%q, id=%s): %v", req.Method, req.ID, err)
		res.Result = nil
		res.Error = toError(err)
	} else if res.Result == nil {
		res.Result = struct{}{}
	}

	res.JSONRPC = Version
	res.ID = req.ID
	if len(res.ID) == 0 {
		res.ID = nullID
	}

	return res
}

func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	return NewError(CodeInternalError, KindInternal, "%v", err)
}

// encode writes res as a single line and flushes it
func (p *Process) encode(bw *bufio.Writer, encoder *json.Encoder, res *Response) error {
	err := encoder.Encode(res)
	if err != nil {
		p.logger.Errorf("encode response(id=%s): %v", res.ID, err)

		err = encoder.Encode(&Response{
			JSONRPC: Version,
			ID:      res.ID,
			Error:   NewError(CodeInternalError, KindInternal, "encode response: %v", err),
		})
		if err != nil {
			return fmt.Errorf("encode error response: %w", err)
		}
	}

	err = bw.Flush()
	if err != nil {
		return fmt.Errorf("flush response: %w", err)
	}

	return nil
}

type readResult struct {
	line []byte
	err  error
}

// decodeWorker reads the input one line at a time and calls handler for every
// non-blank line. A line that is not a valid request is passed on with its decode
// error set so that it is answered with an error response.
//
// The next line is only read once handler returned. A read blocked on an idle
// input does not delay the return on ctx cancellation.
func (p *Process) decodeWorker(ctx context.Context, r io.Reader, handler func(context.Context, *Request) error) error {
	br := bufio.NewReader(r)

	next := make(chan struct{})
	results := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-next:
			case <-done:
				return
			}

			line, err := br.ReadBytes('\n')
			select {
			case results <- readResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var res readResult
		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case res = <-results:
		case <-ctx.Done():
			return ctx.Err()
		}

		if len(bytes.TrimSpace(res.line)) > 0 {
			req := p.decodeRequest(res.line)
			if err := handler(ctx, req); err != nil {
				return err
			}
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("read request: %w", res.err)
		}
	}
}

func (p *Process) decodeRequest(line []byte) *Request {
	var req Request
	err := json.Unmarshal(line, &req)
	if err != nil {
		if !json.Valid(line) {
			p.logger.Warnf("malformed request line(%d bytes): %v", len(line), err)
			return &Request{decodeErr: NewError(CodeParseError, KindMalformedRequest, "parse error: %v", err)}
		}

		p.logger.Warnf("invalid request(%d bytes): %v", len(line), err)
		return &Request{decodeErr: NewError(CodeInvalidRequest, KindMalformedRequest, "invalid request: %v", err)}
	}

	if req.Method == "" {
		req.decodeErr = NewError(CodeInvalidRequest, KindMalformedRequest, "invalid request: missing method")
	}

	return &req
}

// handle routes requests to the handler of their method
func (p *Process) handle(ctx context.Context, req *Request, res *Response) error {
	if req.decodeErr != nil {
		return req.decodeErr
	}

	var handler Handler
	method := canonicalMethod(req.Method)
	switch method {
	case MethodInitialize:
		handler = p.initializeHandler
	case MethodListResources:
		handler = p.listResourcesHandler
	case MethodReadResource:
		handler = p.readResourceHandler
	case MethodListTools:
		handler = p.listToolsHandler
	case MethodCallTool:
		handler = p.callToolHandler
	case MethodPing:
		res.Result = struct{}{}
		return nil
	default:
		return NewError(CodeMethodNotFound, KindUnknownMethod, "unknown method: %s", req.Method)
	}

	if handler == nil {
		return NewError(CodeMethodNotFound, KindUnknownMethod, "%s method not supported", method)
	}

	return handler(ctx, req, res)
}

// close calls the closeHandler if one is set
func (p *Process) close(ctx context.Context) error {
	if p.closeHandler == nil {
		return nil
	}

	return p.closeHandler(ctx)
}
