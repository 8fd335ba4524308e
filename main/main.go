// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/time-coin/timecoin/config"
	"github.com/time-coin/timecoin/node"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/version"
)

func main() {
	fs := pflag.NewFlagSet(version.Client, pflag.ContinueOnError)
	config.BuildFlags(fs)
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Printf("%s %s\n", version.Client, version.Current)
		return
	}

	v := viper.New()
	v.SetEnvPrefix("timecoin")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.GetConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(2)
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %s\n", err)
		os.Exit(2)
	}
	logFactory := logging.NewFactory(logging.Config{
		Directory:    cfg.LogDir,
		LogLevel:     level,
		DisplayLevel: zapcore.InfoLevel,
		MaxSizeMB:    64,
		MaxFiles:     8,
		MaxAgeDays:   30,
	})

	n, err := node.New(cfg, logFactory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node initialization failed: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "node exited: %s\n", err)
		os.Exit(1)
	}
}
