// Package mcp loads remote Model Context Protocol server definitions and
// probes them over the streamable HTTP transport.
//
// Tool execution stays with the provider; this client only checks that a
// server answers and lists what it offers.
//
// Information Hiding:
// - Session setup and pagination of tools/list hidden
// - Configured headers injected at the HTTP transport
// - Mapping of 401/403 responses to ErrAuthRequired

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/richinex/chatkit/model"
)

// ErrAuthRequired is returned when the server rejects the client as unauthenticated.
var ErrAuthRequired = errors.New("mcp server requires authentication")

// clientInfo identifies chatkit during initialize.
var clientInfo = &sdk.Implementation{Name: "chatkit", Version: "0.1.0"}

// ToolInfo describes a tool available on the MCP server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ServerInfo is what the server reported during initialize.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
}

// Client is an open session with one remote MCP server.
type Client struct {
	server  model.MCPServer
	session *sdk.ClientSession
}

// headerTransport adds the server's configured headers to every request and
// remembers the last authentication rejection.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
	denied  atomic.Int32
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
	}
	resp, err := t.base.RoundTrip(req)
	if err == nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		t.denied.Store(int32(resp.StatusCode))
	}
	return resp, err
}

// Connect opens a session and performs the initialize handshake.
// A nil httpClient uses http.DefaultClient.
func Connect(ctx context.Context, server model.MCPServer, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := &headerTransport{base: base, headers: server.Headers}
	wrapped := *httpClient
	wrapped.Transport = transport

	client := sdk.NewClient(clientInfo, nil)
	session, err := client.Connect(ctx, &sdk.StreamableClientTransport{
		Endpoint:   server.URL,
		HTTPClient: &wrapped,
	}, nil)
	if err != nil {
		if status := transport.denied.Load(); status != 0 {
			return nil, fmt.Errorf("%w: %s returned %d", ErrAuthRequired, server.ID, status)
		}
		return nil, fmt.Errorf("failed to connect to MCP server %s: %w", server.ID, err)
	}
	return &Client{server: server, session: session}, nil
}

// Info returns what the server reported during initialize.
func (c *Client) Info() ServerInfo {
	var info ServerInfo
	if res := c.session.InitializeResult(); res != nil {
		info.ProtocolVersion = res.ProtocolVersion
		if res.ServerInfo != nil {
			info.Name = res.ServerInfo.Name
			info.Version = res.ServerInfo.Version
		}
	}
	return info
}

// SessionID returns the session assigned by the server, if any.
func (c *Client) SessionID() string {
	return c.session.ID()
}

// ListTools returns all tools available on the MCP server, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	cursor := ""
	for {
		res, err := c.session.ListTools(ctx, &sdk.ListToolsParams{Cursor: cursor})
		if err != nil {
			return tools, fmt.Errorf("failed to list tools on %s: %w", c.server.ID, err)
		}
		for _, t := range res.Tools {
			info := ToolInfo{Name: t.Name, Description: t.Description}
			if t.InputSchema != nil {
				if schema, err := json.Marshal(t.InputSchema); err == nil {
					info.InputSchema = schema
				}
			}
			tools = append(tools, info)
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}

// ProbeResult is the outcome of probing one server.
type ProbeResult struct {
	Server model.MCPServer
	Info   ServerInfo
	Tools  []ToolInfo
	Err    error
}

// NeedsAuth reports whether the server turned the probe away for credentials.
func (r ProbeResult) NeedsAuth() bool {
	return errors.Is(r.Err, ErrAuthRequired)
}

// Probe connects to every server and lists its tools. Failures are reported
// per server and do not stop the others. Results keep the order of servers.
func Probe(ctx context.Context, servers []model.MCPServer, httpClient *http.Client) []ProbeResult {
	results := make([]ProbeResult, len(servers))
	var wg sync.WaitGroup
	for i, server := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = probeOne(ctx, server, httpClient)
		}()
	}
	wg.Wait()
	return results
}

func probeOne(ctx context.Context, server model.MCPServer, httpClient *http.Client) ProbeResult {
	result := ProbeResult{Server: server}
	client, err := Connect(ctx, server, httpClient)
	if err != nil {
		result.Err = err
		return result
	}
	defer client.Close()

	result.Info = client.Info()
	result.Tools, result.Err = client.ListTools(ctx)
	return result
}
