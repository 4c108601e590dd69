// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/abistore/store"
)

const (
	envPrefix = "abistore"

	versionKey           = "version"
	configFileKey        = "config-file"
	dbDriverKey          = "db-driver"
	databaseURLKey       = "database-url"
	dbMaxOpenConnsKey    = "db-max-open-conns"
	dbMaxIdleConnsKey    = "db-max-idle-conns"
	dbConnMaxLifetimeKey = "db-conn-max-lifetime"
	abiKey               = "abi"
	httpHostKey          = "http-host"
	httpPortKey          = "http-port"
	logLevelKey          = "log-level"
	catalogCacheSizeKey  = "catalog-cache-size"
)

// config is the resolved process configuration
type config struct {
	Version bool

	Store store.Config

	// ABIs are program documents registered at startup
	ABIs []string

	HTTPHost string
	HTTPPort uint

	LogLevel         string
	CatalogCacheSize int
}

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("abistore", flag.ContinueOnError)

	fs.Bool(versionKey, false, "If true, prints the version and quits")
	fs.String(configFileKey, "", "Path to a config file")
	fs.String(dbDriverKey, store.DriverPQ, "Database driver, postgres or pgx")
	fs.String(databaseURLKey, "", "PostgreSQL connection url")
	fs.Int(dbMaxOpenConnsKey, 16, "Maximum number of open database connections")
	fs.Int(dbMaxIdleConnsKey, 4, "Maximum number of idle database connections")
	fs.Duration(dbConnMaxLifetimeKey, 30*time.Minute, "Maximum lifetime of a database connection")
	fs.String(abiKey, "", "Comma separated paths of program ABI documents to register at startup")
	fs.String(httpHostKey, "127.0.0.1", "Address the HTTP server listens on")
	fs.Uint(httpPortKey, 9650, "Port the HTTP server listens on")
	fs.String(logLevelKey, "info", "Log level")
	fs.Int(catalogCacheSizeKey, 64, "Number of parsed programs kept in memory")

	return fs
}

// getViper returns the viper environment for the binary. Flags take
// precedence over ABISTORE_ environment variables, which take precedence
// over the config file.
func getViper(args []string) (*viper.Viper, error) {
	v := viper.New()

	fs := pflag.NewFlagSet("abistore", pflag.ContinueOnError)
	fs.AddGoFlagSet(buildFlagSet())
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString(configFileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("couldn't read config file %q: %w", path, err)
		}
	}
	return v, nil
}

func getConfig(args []string) (config, error) {
	v, err := getViper(args)
	if err != nil {
		return config{}, err
	}

	var abis []string
	for _, path := range strings.Split(v.GetString(abiKey), ",") {
		if path = strings.TrimSpace(path); path != "" {
			abis = append(abis, path)
		}
	}

	return config{
		Version: v.GetBool(versionKey),
		Store: store.Config{
			Driver:          v.GetString(dbDriverKey),
			URL:             v.GetString(databaseURLKey),
			MaxOpenConns:    v.GetInt(dbMaxOpenConnsKey),
			MaxIdleConns:    v.GetInt(dbMaxIdleConnsKey),
			ConnMaxLifetime: v.GetDuration(dbConnMaxLifetimeKey),
		},
		ABIs:             abis,
		HTTPHost:         v.GetString(httpHostKey),
		HTTPPort:         v.GetUint(httpPortKey),
		LogLevel:         v.GetString(logLevelKey),
		CatalogCacheSize: v.GetInt(catalogCacheSizeKey),
	}, nil
}
