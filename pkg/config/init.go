package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a sample configuration file to the default location
// and returns its path. An existing file is only replaced when force is
// true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// entry is one key of a generated mapping. value is a scalar, a []entry
// (nested mapping) or a *yaml.Node.
type entry struct {
	key     string
	comment string
	value   any
}

func mappingNode(entries []entry) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range entries {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: e.key, HeadComment: e.comment}

		var valueNode *yaml.Node
		switch v := e.value.(type) {
		case []entry:
			n, err := mappingNode(v)
			if err != nil {
				return nil, err
			}
			valueNode = n
		case *yaml.Node:
			valueNode = v
		case time.Duration:
			valueNode = &yaml.Node{Kind: yaml.ScalarNode, Value: v.String()}
		default:
			valueNode = &yaml.Node{}
			if err := valueNode.Encode(v); err != nil {
				return nil, fmt.Errorf("encode %s: %w", e.key, err)
			}
		}

		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

func sequenceNode(items [][]entry) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode}
	for _, item := range items {
		n, err := mappingNode(item)
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content, n)
	}
	return node, nil
}

// generateYAMLWithComments renders cfg as YAML annotated with comments
// describing each setting.
func generateYAMLWithComments(cfg *Config) (string, error) {
	users := make([][]entry, len(cfg.Auth.Users))
	for i, u := range cfg.Auth.Users {
		users[i] = []entry{
			{key: "username", value: u.Username},
			{key: "password_hash", value: u.PasswordHash},
			{key: "roles", value: u.Roles},
		}
	}
	usersNode, err := sequenceNode(users)
	if err != nil {
		return "", err
	}

	properties := make([][]entry, len(cfg.Registry.Properties))
	for i, p := range cfg.Registry.Properties {
		attrs := make([][]entry, len(p.Attributes))
		for j, a := range p.Attributes {
			attrs[j] = []entry{
				{key: "name", value: a.Name},
				{key: "default", value: a.Default},
				{key: "writable", value: a.Writable},
				{key: "description", value: a.Description},
			}
		}
		attrsNode, err := sequenceNode(attrs)
		if err != nil {
			return "", err
		}
		properties[i] = []entry{
			{key: "name", value: p.Name},
			{key: "attributes", value: attrsNode},
		}
	}
	propertiesNode, err := sequenceNode(properties)
	if err != nil {
		return "", err
	}

	mxCfg := cfg.Adapters.MX
	wsCfg := cfg.Adapters.WebSocket

	root, err := mappingNode([]entry{
		{key: "logging", comment: "Logging: level DEBUG|INFO|WARN|ERROR, format text|json, output stdout|stderr|<file>", value: []entry{
			{key: "level", value: cfg.Logging.Level},
			{key: "format", value: cfg.Logging.Format},
			{key: "output", value: cfg.Logging.Output},
		}},
		{key: "server", comment: "Server-wide settings", value: []entry{
			{key: "shutdown_timeout", value: cfg.Server.ShutdownTimeout},
			{key: "metrics", comment: "Prometheus endpoint (/metrics)", value: []entry{
				{key: "enabled", value: cfg.Server.Metrics.Enabled},
				{key: "port", value: cfg.Server.Metrics.Port},
			}},
		}},
		{key: "auth", comment: "Authentication: static (bcrypt users, see 'dittomx hash-password') or none", value: []entry{
			{key: "type", value: cfg.Auth.Type},
			{key: "users", value: usersNode},
		}},
		{key: "registry", comment: "Managed objects and attribute persistence", value: []entry{
			{key: "store", comment: "Where writable properties are saved: memory or badger", value: []entry{
				{key: "type", value: cfg.Registry.Store.Type},
				{key: "badger", value: cfg.Registry.Store.Badger},
			}},
			{key: "properties", comment: "Each entry registers dittomx:type=Properties,name=<name>", value: propertiesNode},
		}},
		{key: "adapters", comment: "Protocol adapters", value: []entry{
			{key: "mx", comment: "TCP adapter", value: []entry{
				{key: "enabled", value: mxCfg.Enabled},
				{key: "port", value: mxCfg.Port},
				{key: "max_connections", comment: "0 = unlimited", value: mxCfg.MaxConnections},
				{key: "idle_timeout", comment: "0 = never close idle clients", value: mxCfg.IdleTimeout},
				{key: "write_timeout", value: mxCfg.WriteTimeout},
				{key: "shutdown_timeout", value: mxCfg.ShutdownTimeout},
				{key: "metrics_log_interval", value: mxCfg.MetricsLogInterval},
				{key: "max_frame_size", comment: "Bytes; 0 = unlimited", value: mxCfg.MaxFrameSize},
				{key: "rate_limit", comment: "Per-connection throttling; 0 requests_per_second = off", value: []entry{
					{key: "requests_per_second", value: mxCfg.RateLimit.RequestsPerSecond},
					{key: "burst", value: mxCfg.RateLimit.Burst},
				}},
			}},
			{key: "websocket", comment: "Same protocol over WebSocket binary messages", value: []entry{
				{key: "enabled", value: wsCfg.Enabled},
				{key: "port", value: wsCfg.Port},
				{key: "path", value: wsCfg.Path},
				{key: "allowed_origins", comment: "Empty = any origin", value: wsCfg.AllowedOrigins},
				{key: "max_connections", value: wsCfg.MaxConnections},
				{key: "shutdown_timeout", value: wsCfg.ShutdownTimeout},
				{key: "max_frame_size", value: wsCfg.MaxFrameSize},
			}},
		}},
	})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("# DittoMX Configuration File\n")
	buf.WriteString("# Environment variables override these settings, e.g. DITTOMX_LOGGING_LEVEL=DEBUG\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return buf.String(), nil
}
