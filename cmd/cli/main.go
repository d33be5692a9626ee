package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattice-network/lattice/controller"
	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

// SoftwareVersion is reported by the version command
const SoftwareVersion = "0.1.0"

var (
	dataDir string

	rootCmd = &cobra.Command{
		Use:     "lattice",
		Short:   "lattice is a permissioned blockchain validator node",
		Version: SoftwareVersion,
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "start the validator software",
		Run: func(cmd *cobra.Command, args []string) {
			Start()
		},
	}
)

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// Start() boots the node out of the data directory and blocks until a shutdown
// signal arrives
func Start() {
	config, nodeKey := InitializeDataDirectory(dataDir, lib.NewDefaultLogger())
	l := lib.NewLogger(lib.LoggerConfig{Level: config.GetLogLevel()}, config.DataDirPath)
	metrics := lib.NewMetricsServer(config.MetricsConfig, l)
	metrics.Start()
	node, err := controller.New(config, nodeKey, metrics, l)
	if err != nil {
		l.Fatal(err.Error())
	}
	if err = node.Start(); err != nil {
		l.Fatal(err.Error())
	}
	l.Infof("Validator %s is running", (&lib.PeerAddress{PublicKey: node.PublicKey}).ID())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGABRT)
	s := <-stop
	node.Stop()
	l.Infof("Exit command %s received", s)
	os.Exit(0)
}

// InitializeDataDirectory() writes the default config file and a fresh node key
// on first run, then loads both
func InitializeDataDirectory(dataDirPath string, log lib.LoggerI) (lib.Config, crypto.PrivateKeyI) {
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		panic(err)
	}
	configFilePath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.ConfigFilePath)
		if err = lib.DefaultConfig().WriteToFile(configFilePath); err != nil {
			panic(err)
		}
	}
	nodeKeyPath := filepath.Join(dataDirPath, lib.NodeKeyFilePath)
	if _, err := os.Stat(nodeKeyPath); errors.Is(err, os.ErrNotExist) {
		nodeKey, err := crypto.NewEd25519PrivateKey()
		if err != nil {
			panic(err)
		}
		log.Infof("Creating %s file", lib.NodeKeyFilePath)
		if err = crypto.PrivateKeyToFile(nodeKey, nodeKeyPath); err != nil {
			panic(err)
		}
	}
	nodeKey, err := crypto.NewPrivateKeyFromFile(nodeKeyPath)
	if err != nil {
		panic(err)
	}
	config, e := lib.NewConfigFromFile(configFilePath)
	if e != nil {
		panic(e)
	}
	config.DataDirPath = dataDirPath
	return config, nodeKey
}
