package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	rediskv "github.com/raniellyferreira/redis-inmemory-kv"
)

// serverConfig is the resolved server configuration
type serverConfig struct {
	Addr        string
	Password    string
	HTTPAddr    string
	CORSOrigins []string
	Shards      int
	ReadTimeout time.Duration
	ShowVersion bool
}

// loadConfig resolves configuration from, in increasing priority: defaults,
// the YAML file named by --config, REDISKV_* environment variables and
// flags given on the command line.
func loadConfig(args []string) (*serverConfig, error) {
	fs := flag.NewFlagSet("rediskv-server", flag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")
	fs.String("addr", ":6379", "RESP listen address (host:port)")
	fs.String("password", "", "Password clients must AUTH with")
	fs.String("http", "", "HTTP admin API listen address, disabled when empty")
	fs.String("cors", "", "Comma-separated origins allowed to call the HTTP admin API")
	fs.Int("shards", 64, "Number of storage shards")
	fs.Duration("read-timeout", 30*time.Second, "Idle timeout for client connections, 0 disables")
	fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	fs.VisitAll(func(f *flag.Flag) {
		v.SetDefault(f.Name, f.DefValue)
	})

	v.SetEnvPrefix("REDISKV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := fs.Lookup("config").Value.String(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		v.Set(f.Name, f.Value.String())
	})

	return &serverConfig{
		Addr:        v.GetString("addr"),
		Password:    v.GetString("password"),
		HTTPAddr:    v.GetString("http"),
		CORSOrigins: splitOrigins(v.Get("cors")),
		Shards:      v.GetInt("shards"),
		ReadTimeout: v.GetDuration("read-timeout"),
		ShowVersion: v.GetBool("version"),
	}, nil
}

// splitOrigins accepts both a YAML list and a comma-separated string
func splitOrigins(raw interface{}) []string {
	var parts []string
	switch val := raw.(type) {
	case []interface{}:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	case []string:
		parts = val
	case string:
		parts = strings.Split(val, ",")
	}

	var origins []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// options converts the configuration into store options
func (c *serverConfig) options() []rediskv.Option {
	opts := []rediskv.Option{
		rediskv.WithAddr(c.Addr),
		rediskv.WithPassword(c.Password),
		rediskv.WithShardCount(c.Shards),
		rediskv.WithReadTimeout(c.ReadTimeout),
	}
	if c.HTTPAddr != "" {
		opts = append(opts, rediskv.WithHTTPAddr(c.HTTPAddr))
	}
	if len(c.CORSOrigins) > 0 {
		opts = append(opts, rediskv.WithCORSOrigins(c.CORSOrigins...))
	}
	return opts
}
