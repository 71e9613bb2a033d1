// MCP server definition file support.
//
// Uses the Anthropic-style mcpServers map, with remote servers reached by URL:
//
//	{
//	  "mcpServers": {
//	    "github": {
//	      "url": "https://mcp.example.com/github",
//	      "headers": {"Authorization": "Bearer ${GITHUB_TOKEN}"},
//	      "auth_type": "oauth"
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/richinex/chatkit/model"
)

// ErrMissingURL is returned for a server definition without a url.
var ErrMissingURL = errors.New("mcp server has no url")

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents a single remote MCP server.
type ServerConfig struct {
	Name     string            `json:"name,omitempty"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Prompt   string            `json:"prompt,omitempty"`
	AuthType string            `json:"auth_type,omitempty"`
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadServers reads a definition file into servers sorted by id.
func LoadServers(path string) ([]model.MCPServer, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return config.Servers()
}

// Servers converts the file entries. The map key becomes the server id and,
// unless a name is given, its display name. Header values expand ${VAR}.
func (c *Config) Servers() ([]model.MCPServer, error) {
	servers := make([]model.MCPServer, 0, len(c.MCPServers))
	for id, sc := range c.MCPServers {
		if sc.URL == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingURL, id)
		}
		name := sc.Name
		if name == "" {
			name = id
		}
		var headers map[string]string
		if len(sc.Headers) > 0 {
			headers = make(map[string]string, len(sc.Headers))
			for k, v := range sc.Headers {
				headers[k] = os.ExpandEnv(v)
			}
		}
		servers = append(servers, model.MCPServer{
			ID:       id,
			Name:     name,
			URL:      os.ExpandEnv(sc.URL),
			Headers:  headers,
			Prompt:   sc.Prompt,
			AuthType: sc.AuthType,
		})
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}
