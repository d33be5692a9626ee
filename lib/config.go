package lib

import (
	"encoding/hex"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/units"
	"github.com/lattice-network/lattice/lib/crypto"
)

/* This file implements the 'user controlled' configuration of each module of the node */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath  = "config.json"   // the node configuration
	NodeKeyFilePath = "node_key.json" // the node's private identity key
)

// Config is the structure of the user configuration options for a lattice node
type Config struct {
	MainConfig      // main options spanning all modules
	ConsensusConfig // vote transport and round pacing options
	OrderingConfig  // proposal round scheduling options
	P2PConfig       // peer-to-peer options
	MetricsConfig   // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:      DefaultMainConfig(),
		ConsensusConfig: DefaultConsensusConfig(),
		OrderingConfig:  DefaultOrderingConfig(),
		P2PConfig:       DefaultP2PConfig(),
		MetricsConfig:   DefaultMetricsConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel    string `json:"logLevel"`    // any level includes the levels above it: debug < info < warn < error
	DataDirPath string `json:"dataDirPath"` // folder where the node keeps its key, config and logs
}

// DefaultMainConfig() sets the log level to 'info' and the data dir to its default location
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel:    "info",
		DataDirPath: DefaultDataDirPath(),
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel enum
func (m *MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "inf"):
		return InfoLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// knownLogLevel() reports whether the level string names one of the four levels
func knownLogLevel(level string) bool {
	l := strings.ToLower(level)
	return strings.Contains(l, "deb") || strings.Contains(l, "inf") ||
		strings.Contains(l, "war") || strings.Contains(l, "err")
}

// CONSENSUS CONFIG BELOW

// ConsensusConfig paces the reject-round cycle
// NOTES:
// - the delay grows by min(MaxRoundsDelayMS, 1s) on every second consecutive non-commit outcome
// - a commit outcome resets the delay to zero
type ConsensusConfig struct {
	MaxRoundsDelayMS uint64 `json:"maxRoundsDelayMS"` // upper bound (in milliseconds) for the reject-round delay
}

// DefaultConsensusConfig() caps the reject-round delay at 3 seconds
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		MaxRoundsDelayMS: 3000,
	}
}

// ORDERING CONFIG BELOW

// OrderingConfig seeds the proposal round scheduler
type OrderingConfig struct {
	InitialHashes []string `json:"initialHashes"` // hex digests of the two blocks before the first local one; empty means derive defaults
}

// DefaultOrderingConfig() leaves the initial hashes to be derived at startup
func DefaultOrderingConfig() OrderingConfig {
	return OrderingConfig{}
}

// P2P CONFIG BELOW

// P2PConfig defines peering limits and dialing behavior
type P2PConfig struct {
	ListenAddress   string   `json:"listenAddress"`   // listen for incoming connections
	ExternalAddress string   `json:"externalAddress"` // advertise for external dialing
	MaxInbound      int      `json:"maxInbound"`      // max inbound peers
	MaxOutbound     int      `json:"maxOutbound"`     // max outbound peers
	DialPeers       []string `json:"dialPeers"`       // peers to dial with expo-backoff (format pubkey@ip:port)
	MaxMessageBytes int64    `json:"maxMessageBytes"` // max size of a single wire message
	SendQueueSize   int      `json:"sendQueueSize"`   // frames buffered per connection before drops
	WriteBytesPerS  int64    `json:"writeBytesPerS"`  // per-connection write rate limit, 0 is unlimited
	ReadBytesPerS   int64    `json:"readBytesPerS"`   // per-connection read rate limit, 0 is unlimited
	DialBackoffMaxS int      `json:"dialBackoffMaxS"` // give up dialing a peer after this much elapsed backoff
}

func DefaultP2PConfig() P2PConfig {
	return P2PConfig{
		ListenAddress:   "0.0.0.0:9301",
		ExternalAddress: "", // should be populated by the user
		MaxInbound:      21, // inbounds should be close to 3x greater than outbounds
		MaxOutbound:     7,  // to ensure 'new joiners' have slots to take
		MaxMessageBytes: int64(4 * units.MB),
		SendQueueSize:   64,
		WriteBytesPerS:  int64(8 * units.MB),
		ReadBytesPerS:   int64(8 * units.MB),
		DialBackoffMaxS: 60,
	}
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	Enabled           bool   `json:"enabled"`           // if the metrics are enabled
	PrometheusAddress string `json:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:           true,
		PrometheusAddress: "0.0.0.0:9090",
	}
}

// DefaultDataDirPath() is $USERHOME/.lattice
func DefaultDataDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".lattice")
}

// Validate() rejects configurations that would break an invariant at runtime
func (c *Config) Validate() ErrorI {
	if !knownLogLevel(c.LogLevel) {
		return ErrBadLogLevel(c.LogLevel)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return ErrBadListenAddress(c.ListenAddress)
	}
	if c.MaxMessageBytes <= 0 || c.MaxMessageBytes > int64(32*units.MB) {
		return ErrBadMaxMessageBytes(c.MaxMessageBytes)
	}
	if c.MaxRoundsDelayMS > 600000 {
		return ErrBadDelayParams(c.MaxRoundsDelayMS)
	}
	if n := len(c.InitialHashes); n != 0 && n != 2 {
		return ErrBadInitialHash(strings.Join(c.InitialHashes, ","))
	}
	for _, h := range c.InitialHashes {
		bz, err := hex.DecodeString(h)
		if err != nil || len(bz) != crypto.HashSize {
			return ErrBadInitialHash(h)
		}
	}
	return nil
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filePath string) ErrorI {
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ErrJSONMarshal(err)
	}
	if err = os.WriteFile(filePath, jsonBytes, os.ModePerm); err != nil {
		return ErrWriteFile(err)
	}
	return nil
}

// NewConfigFromFile() populates a Config object from a JSON file, filling any
// blanks with the defaults
func NewConfigFromFile(filePath string) (Config, ErrorI) {
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, ErrReadFile(err)
	}
	c := DefaultConfig()
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		return Config{}, ErrJSONUnmarshal(err)
	}
	return c, c.Validate()
}
