// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/INT-devs/mobile-wallets/chaincfg"
	"github.com/INT-devs/mobile-wallets/intutil"
)

const (
	defaultConfigFilename = "intspvd.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "intspvd.log"
	defaultDataDirname    = "data"
	defaultFPRate         = 0.0001
)

var (
	defaultHomeDir    = intspvdHomeDir()
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for intspvd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion  bool     `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile   string   `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir      string   `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir       string   `long:"logdir" description:"Directory to log output"`
	ConnectPeers []string `long:"connect" description:"Connect to the specified peer at startup (host:port, may be repeated)"`
	TestNet      bool     `long:"testnet" description:"Use the test network"`
	SimNet       bool     `long:"simnet" description:"Use the simulation test network"`
	WatchAddrs   []string `short:"w" long:"watchaddress" description:"Watch the given address for matching transactions (may be repeated)"`
	FPRate       float64  `long:"fprate" description:"Bloom filter false positive rate"`
	DebugLevel   string   `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	params *chaincfg.Params
}

// intspvdHomeDir returns an OS appropriate home directory for intspvd.
func intspvdHomeDir() string {
	// Search for Windows APPDATA first.  This won't exist on POSIX OSes.
	appData := os.Getenv("APPDATA")
	if appData != "" {
		return filepath.Join(appData, "Intspvd")
	}

	// Fall back to standard HOME directory that works for most POSIX OSes.
	home := os.Getenv("HOME")
	if home != "" {
		return filepath.Join(home, ".intspvd")
	}

	// In the worst case, use the current directory.
	return "."
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in intspvd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		FPRate:     defaultFPRate,
		DebugLevel: defaultLogLevel,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		appName := filepath.Base(os.Args[0])
		appName = strings.TrimSuffix(appName, filepath.Ext(appName))
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &chaincfg.MainNetParams
	if cfg.TestNet {
		numNets++
		cfg.params = &chaincfg.TestNetParams
	}
	if cfg.SimNet {
		numNets++
		cfg.params = &chaincfg.SimNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet and simnet params can't be used " +
			"together -- choose one of the two"
		err := fmt.Errorf(str, "loadConfig")
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Append the network type to the data and log directories so it is
	// "namespaced" per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.params.Name)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// The daemon has no peer discovery, so at least one peer to connect
	// to must be provided.
	if len(cfg.ConnectPeers) == 0 {
		str := "%s: at least one peer must be specified via --connect"
		err := fmt.Errorf(str, "loadConfig")
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Add the default port for the active network to any connect
	// addresses which don't already specify one.
	for i, addr := range cfg.ConnectPeers {
		cfg.ConnectPeers[i] = normalizeAddress(addr,
			cfg.params.DefaultPort)
	}

	// The false positive rate must describe a probability.
	if cfg.FPRate <= 0 || cfg.FPRate > 1 {
		str := "%s: the fprate option must be in the range (0, 1] " +
			"-- parsed [%v]"
		err := fmt.Errorf(str, "loadConfig", cfg.FPRate)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Reject malformed watch addresses up front rather than after the
	// chain is loaded.
	for _, addr := range cfg.WatchAddrs {
		if !intutil.IsValidAddress(addr, cfg.params) {
			str := "%s: invalid watch address %q"
			err := fmt.Errorf(str, "loadConfig", addr)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	return &cfg, remainingArgs, nil
}
