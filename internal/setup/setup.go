// Package setup registers the pgxbridge MCP server with desktop AI clients
// and checks that the installation is usable.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pgxbridge/internal/config"
)

// serverName is the key under which the server appears in the client config.
const serverName = "pgxbridge"

// binaryName is the stdio server binary this package registers.
const binaryName = "mcp-server"

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// SetupOptions contains options for the setup process.
type SetupOptions struct {
	BinaryPath    string // Path to the server binary
	ReferencePath string // Path to the CPIC reference CSV
	AutoConfirm   bool   // Skip confirmation prompts
}

// GetClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func GetClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		// Try XDG config first, then fallback
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "Claude")
		} else {
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClaudeDesktopConfig loads the existing Claude Desktop configuration.
func LoadClaudeDesktopConfig(configPath string) (*ClaudeDesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &ClaudeDesktopConfig{
				MCPServers: make(map[string]MCPServerConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ClaudeDesktopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}

	return &cfg, nil
}

// SaveClaudeDesktopConfig saves the configuration to the Claude Desktop config file.
func SaveClaudeDesktopConfig(configPath string, cfg *ClaudeDesktopConfig) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigureClaudeDesktop adds or updates the pgxbridge server in the Claude
// Desktop config.
func ConfigureClaudeDesktop(opts SetupOptions) error {
	configPath, err := GetClaudeDesktopConfigPath()
	if err != nil {
		return err
	}

	cfg, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = findBinary()
		if err != nil {
			return fmt.Errorf("could not find server binary: %w", err)
		}
	}

	serverConfig := MCPServerConfig{
		Command: binaryPath,
		Args:    []string{},
		Env:     make(map[string]string),
	}
	if opts.ReferencePath != "" {
		serverConfig.Env["PGXBRIDGE_REFERENCE_PATH"] = opts.ReferencePath
	}

	cfg.MCPServers[serverName] = serverConfig

	return SaveClaudeDesktopConfig(configPath, cfg)
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(os.Getenv("HOME"), ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, err := filepath.Abs(loc)
			if err != nil {
				return loc, nil
			}
			return absPath, nil
		}
	}

	return "", fmt.Errorf("binary %q not found in common locations", binaryName)
}

// Status represents the current setup status.
type Status struct {
	ClaudeDesktopConfigured bool
	ClaudeDesktopPath       string
	ServerConfigured        bool
	ServerPath              string
	ReferencePath           string
	Issues                  []string
}

// GetStatus checks the current setup status.
func GetStatus() (*Status, error) {
	status := &Status{
		Issues: []string{},
	}

	configPath, err := GetClaudeDesktopConfigPath()
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not determine Claude Desktop config path: %v", err))
	} else {
		status.ClaudeDesktopPath = configPath

		cfg, err := LoadClaudeDesktopConfig(configPath)
		if err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Could not load Claude Desktop config: %v", err))
		} else if serverConfig, ok := cfg.MCPServers[serverName]; ok {
			status.ClaudeDesktopConfigured = true
			status.ServerConfigured = true
			status.ServerPath = serverConfig.Command

			if _, err := os.Stat(serverConfig.Command); os.IsNotExist(err) {
				status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", serverConfig.Command))
			}

			status.ReferencePath = serverConfig.Env["PGXBRIDGE_REFERENCE_PATH"]
		}
	}

	if status.ReferencePath == "" {
		status.ReferencePath = config.DefaultLiteConfig().ReferencePath
	}

	if _, err := os.Stat(status.ReferencePath); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Reference table not found: %s", status.ReferencePath))
	}

	return status, nil
}

// Validate checks if the current setup is valid and functional.
func Validate() (bool, []string) {
	var issues []string

	configPath, err := GetClaudeDesktopConfigPath()
	if err != nil {
		issues = append(issues, fmt.Sprintf("Cannot find Claude Desktop config: %v", err))
		return false, issues
	}

	cfg, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		issues = append(issues, fmt.Sprintf("Cannot load Claude Desktop config: %v", err))
		return false, issues
	}

	serverConfig, ok := cfg.MCPServers[serverName]
	if !ok {
		issues = append(issues, "pgxbridge not configured in Claude Desktop")
		return false, issues
	}

	// Check binary exists and is executable
	if info, err := os.Stat(serverConfig.Command); os.IsNotExist(err) {
		issues = append(issues, fmt.Sprintf("Server binary not found: %s", serverConfig.Command))
	} else if err == nil && info.Mode()&0111 == 0 {
		issues = append(issues, fmt.Sprintf("Server binary is not executable: %s", serverConfig.Command))
	}

	referencePath := serverConfig.Env["PGXBRIDGE_REFERENCE_PATH"]
	if referencePath == "" {
		referencePath = config.DefaultLiteConfig().ReferencePath
	}
	if _, err := os.Stat(referencePath); os.IsNotExist(err) {
		issues = append(issues, fmt.Sprintf("Reference table not found: %s", referencePath))
	}

	return len(issues) == 0, issues
}
