package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
	"strings"
)

const Name = "bridgyfed"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host     string
		HttpPort int    `yaml:"httpPort"`
		Domain   string `yaml:"domain"` // the bridge's own domain, used for actor ids and the backlink check
		// Target domains that can never be delivery targets (big silos
		// that don't speak ActivityPub).
		Blocklist []string `yaml:"blocklist"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("BRIDGYFED_HOST")
	envHttpPort := os.Getenv("BRIDGYFED_HTTPPORT")
	envDomain := os.Getenv("BRIDGYFED_DOMAIN")
	envBlocklist := os.Getenv("BRIDGYFED_BLOCKLIST")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envBlocklist != "" {
		c.Conf.Blocklist = strings.Split(envBlocklist, ",")
	}

	return c, nil
}

// HostURL builds an absolute URL on the bridge's own domain.
func (c *AppConfig) HostURL(path string) string {
	return fmt.Sprintf("https://%s/%s", c.Conf.Domain, strings.TrimPrefix(path, "/"))
}

// IsBlocklisted reports whether the given domain (or a subdomain of it) is on
// the target blocklist.
func (c *AppConfig) IsBlocklisted(domain string) bool {
	domain = strings.ToLower(domain)
	for _, blocked := range c.Conf.Blocklist {
		if domain == blocked || strings.HasSuffix(domain, "."+blocked) {
			return true
		}
	}
	return false
}
