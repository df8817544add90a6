// Package mcp serves the tool registry and the preloaded resources over newline-delimited
// JSON-RPC 2.0 on a pair of streams (stdin/stdout in production).
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"

	"github.com/krisalay/omnifocus-mcp-cache/internal/tools"
	"github.com/krisalay/omnifocus-mcp-cache/preload"
)

const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError       = -32700
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeResourceNotFound = -32002
)

// maxLine bounds one request line. Tool arguments are small; this is generous.
const maxLine = 4 << 20

// Resources is the read side of the preloader.
type Resources interface {
	Resources() []preload.Resource
	GetResource(ctx context.Context, uri string) (string, error)
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// notification requests carry no id and get no response.
func (r *Request) notification() bool {
	return len(r.ID) == 0
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      serverInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

type callParams struct {
	Name      string     `json:"name"`
	Arguments tools.Args `json:"arguments"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type readParams struct {
	URI string `json:"uri"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Server dispatches every request on its own goroutine, so a slow automation call never
// holds up a cheap cached read. Responses are written whole, one per line.
type Server struct {
	Name    string
	Version string

	registry  *tools.Registry
	resources Resources
	logger    *log.Logger
	debug     bool

	wmu sync.Mutex
}

// NewServer builds a Server. resources may be nil, in which case no resources are listed.
func NewServer(registry *tools.Registry, resources Resources, logger *log.Logger, debug bool) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		Name:      "omnifocus-mcp",
		Version:   "dev",
		registry:  registry,
		resources: resources,
		logger:    logger,
		debug:     debug,
	}
}

/*
Run serves requests read from r until r is exhausted or ctx is done.

BEHAVIOR:
---------
- one JSON object per line; blank lines are skipped
- an unparseable line gets a parse error response with a null id
- requests run concurrently; Run waits for those in flight before returning
- a panic while handling a request answers it with an internal error
*/
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Printf("parse error: %v", err)
			if err := s.send(w, &Response{ID: json.RawMessage("null"), Error: &RPCError{Code: CodeParseError, Message: "Parse error"}}); err != nil {
				return err
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.safeHandle(ctx, &req)
			if resp == nil {
				return
			}
			if err := s.send(w, resp); err != nil {
				s.logger.Printf("write response %s: %v", req.ID, err)
				cancel()
			}
		}()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func (s *Server) send(w io.Writer, resp *Response) error {
	resp.JSONRPC = "2.0"
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err = w.Write(data)
	return err
}

// safeHandle turns a panicking handler into an internal error for that request alone.
func (s *Server) safeHandle(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("%s %s panicked: %v\n%s", req.Method, req.ID, r, debug.Stack())
			resp = nil
			if !req.notification() {
				resp = &Response{ID: req.ID, Error: &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("Internal error: %v", r)}}
			}
		}
	}()
	return s.handle(ctx, req)
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	if s.debug {
		s.logger.Printf("-> %s %s", req.Method, req.ID)
	}

	var (
		result any
		rpcErr *RPCError
	)
	switch req.Method {
	case "initialize":
		result = s.initialize()
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = map[string]any{"tools": s.registry.List()}
	case "tools/call":
		result, rpcErr = s.callTool(ctx, req.Params)
	case "resources/list":
		result = map[string]any{"resources": s.resourceList()}
	case "resources/read":
		result, rpcErr = s.readResource(ctx, req.Params)
	default:
		if req.notification() {
			// notifications/initialized, notifications/cancelled and friends need no answer.
			return nil
		}
		rpcErr = &RPCError{Code: CodeMethodNotFound, Message: "Method not found: " + req.Method}
	}

	if req.notification() {
		return nil
	}
	return &Response{ID: req.ID, Result: result, Error: rpcErr}
}

func (s *Server) initialize() initializeResult {
	caps := map[string]any{"tools": map[string]any{}}
	if s.resources != nil {
		caps["resources"] = map[string]any{}
	}
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      serverInfo{Name: s.Name, Version: s.Version},
		Capabilities:    caps,
	}
}

/*
callTool runs a tool. Tool failures are results, not protocol errors: the client sees
{"error": true, "message": ...} with isError set, and the conversation goes on.
*/
func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *RPCError) {
	var p callParams
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "Invalid params"}
	}

	out, err := s.registry.Call(ctx, p.Name, p.Arguments)
	if errors.Is(err, tools.ErrUnknownTool) {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err != nil {
		s.logger.Printf("tool %s failed: %v", p.Name, err)
		return toolError(err), nil
	}

	text, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return toolError(fmt.Errorf("encode result: %w", err)), nil
	}
	return callResult{Content: []content{{Type: "text", Text: string(text)}}}, nil
}

func toolError(err error) callResult {
	body, _ := json.Marshal(map[string]any{"error": true, "message": err.Error()})
	return callResult{Content: []content{{Type: "text", Text: string(body)}}, IsError: true}
}

func (s *Server) resourceList() []preload.Resource {
	if s.resources == nil {
		return []preload.Resource{}
	}
	return s.resources.Resources()
}

func (s *Server) readResource(ctx context.Context, raw json.RawMessage) (any, *RPCError) {
	var p readParams
	if err := json.Unmarshal(raw, &p); err != nil || p.URI == "" {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "Invalid params"}
	}
	if s.resources == nil {
		return nil, &RPCError{Code: CodeResourceNotFound, Message: "Resource not found: " + p.URI}
	}

	text, err := s.resources.GetResource(ctx, p.URI)
	switch {
	case errors.Is(err, preload.ErrUnknownResource):
		return nil, &RPCError{Code: CodeResourceNotFound, Message: "Resource not found: " + p.URI}
	case err != nil:
		s.logger.Printf("resource %s: %v", p.URI, err)
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}

	mime := "application/json"
	for _, r := range s.resources.Resources() {
		if r.URI == p.URI {
			mime = r.MIMEType
		}
	}
	return map[string]any{
		"contents": []resourceContent{{URI: p.URI, MIMEType: mime, Text: text}},
	}, nil
}
