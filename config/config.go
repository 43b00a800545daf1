// Package config loads the static cluster view.  Every node must be
// started with the same file.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// A NodeAddr locates one node of the cluster.
type NodeAddr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (a NodeAddr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Config is the cluster view: node ids are indexes into Nodes.
type Config struct {
	Nodes []NodeAddr `yaml:"nodes"`
}

// Load reads and validates a cluster view from a YAML file.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Nodes) == 0 {
		return errors.New("config lists no nodes")
	}
	for i, n := range c.Nodes {
		if n.Host == "" {
			return errors.Errorf("node %d: missing host", i)
		}
		if n.Port <= 0 || n.Port > 65535 {
			return errors.Errorf("node %d: invalid port %d", i, n.Port)
		}
	}
	return nil
}

// Contains reports whether id is a valid node index.
func (c *Config) Contains(id uint64) bool {
	return id < uint64(len(c.Nodes))
}

// Quorum is the majority size for this cluster.
func (c *Config) Quorum() int {
	return len(c.Nodes)/2 + 1
}

// NodeIDs lists every node index, in order.
func (c *Config) NodeIDs() []uint64 {
	ids := make([]uint64, len(c.Nodes))
	for i := range ids {
		ids[i] = uint64(i)
	}
	return ids
}

// Addr returns the address of node id.
func (c *Config) Addr(id uint64) NodeAddr {
	return c.Nodes[id]
}
