// Package protocol contains the JSON-RPC types exchanged with a tool-calling client
// and the loop serving them over a pair of byte streams, one JSON object per line.
package protocol

import (
	"fmt"
	"strings"

	"github.com/mazrean/splunkmcp/internal/pkg/json"
)

// Version is the JSON-RPC version marker written on every response
const Version = "2.0"

// Method is a request method served by a Process.
//
// The set is closed: every other method name is answered with an
// UnknownMethod error.
type Method string

const (
	MethodInitialize    Method = "initialize"    // Initialize returns the server identity
	MethodListResources Method = "listResources" // ListResources returns the resource catalog
	MethodReadResource  Method = "readResource"  // ReadResource returns the content of a resource
	MethodListTools     Method = "listTools"     // ListTools returns the tool catalog
	MethodCallTool      Method = "callTool"      // CallTool runs a tool
	MethodPing          Method = "ping"          // Ping answers with an empty result
)

// methodAliases maps the slash-separated MCP method names onto the methods above
var methodAliases = map[string]Method{
	"resources/list": MethodListResources,
	"resources/read": MethodReadResource,
	"tools/list":     MethodListTools,
	"tools/call":     MethodCallTool,
}

// notificationPrefix marks methods that expect no response
const notificationPrefix = "notifications/"

func canonicalMethod(name string) Method {
	if m, ok := methodAliases[name]; ok {
		return m
	}
	return Method(name)
}

// Request is one JSON-RPC request read from the input stream.
type Request struct {
	// JSONRPC is the version marker sent by the client. It is not enforced.
	JSONRPC string `json:"jsonrpc,omitempty"`

	// ID correlates the response. It is kept as raw JSON and echoed verbatim.
	// An absent ID is answered with a null ID.
	ID json.RawMessage `json:"id,omitempty"`

	// Method selects the handler.
	Method string `json:"method"`

	// Params is decoded by the handler with DecodeParams.
	Params json.RawMessage `json:"params,omitempty"`

	// decodeErr is set when the line could not be decoded into a valid request
	decodeErr *Error
}

// IsNotification reports whether the request expects no response.
// A notification method sent with an ID is answered like any other request.
func (r *Request) IsNotification() bool {
	return r.decodeErr == nil && len(r.ID) == 0 && strings.HasPrefix(r.Method, notificationPrefix)
}

// DecodeParams decodes the request params into v. Missing params decode as an empty object.
func (r *Request) DecodeParams(v any) error {
	params := r.Params
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}

	if err := json.Unmarshal(params, v); err != nil {
		return NewError(CodeInvalidParams, KindInvalidParams, "invalid params: %v", err)
	}

	return nil
}

// Response is the JSON-RPC response written for a Request.
// Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// Error codes. The -32000 range is reserved for server-defined errors.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeSearchFailed     = -32000
	CodeSearchTimeout    = -32001
	CodeResourceNotFound = -32002
)

// Error kinds reported in Error.Data
const (
	KindMalformedRequest = "MalformedRequest"
	KindUnknownMethod    = "UnknownMethod"
	KindUnknownTool      = "UnknownTool"
	KindInvalidParams    = "InvalidParams"
	KindSearchFailed     = "SearchFailed"
	KindSearchTimeout    = "SearchTimeout"
	KindResourceNotFound = "ResourceNotFound"
	KindInternal         = "Internal"
)

// Error is a JSON-RPC error object. Handlers return it to control the code sent to the client.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

type ErrorData struct {
	Kind string `json:"kind"`
}

func NewError(code int, kind string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Data:    &ErrorData{Kind: kind},
	}
}

func (e *Error) Error() string {
	if e.Data == nil {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s (code %d)", e.Data.Kind, e.Message, e.Code)
}

// InitializeResult is the result of MethodInitialize
type InitializeResult struct {
	Name            string       `json:"name"`
	Version         string       `json:"version"`
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Capabilities struct {
	Resources *struct{} `json:"resources,omitempty"`
	Tools     *struct{} `json:"tools,omitempty"`
}

// Resource is an entry of the resource catalog
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

type ReadResourceParams struct {
	URI string `json:"uri"`
}

type ResourceContent struct {
	URI      string `json:"uri,omitempty"`
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
	JSON     any    `json:"json,omitempty"`
	Text     string `json:"text,omitempty"`
}

type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// Tool is an entry of the tool catalog
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON schema of the tool arguments
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content types of a tool result
const (
	ContentTypeText = "text"
	ContentTypeJSON = "json"
)

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

type CallToolResult struct {
	Content []Content `json:"content"`
}
