// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package process bootstraps a frontend binary: flag, environment and
// config file binding through viper, the root logger, and the debug
// listener.
package process

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// Error is the errs class of process errors.
var Error = errs.Class("process error")

func defaultConfigPath(name string) string {
	if name == "" {
		name = filepath.Base(os.Args[0])
	}
	path := filepath.Join(".ambry", name+".yaml")
	home, err := homedir.Dir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path)
}

// Exec runs a *cobra.Command after wiring up process-wide configuration:
// stdlib flags become pflags, and every command flag not set on the
// command line picks up its value from the AMBRY_* environment or the
// config file before the command body runs.
func Exec(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", defaultConfigPath(cmd.Name()), "config file")
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cleanup(cmd)
	Must(cmd.Execute())
}

// Viper returns a viper instance bound to the command flags, the
// environment and the config file named by the --config flag when that
// file exists.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, Error.Wrap(err)
	}
	vip.SetEnvPrefix("ambry")
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Value.String() != "" {
		path := cfgFlag.Value.String()
		if _, err := os.Stat(path); err == nil {
			vip.SetConfigFile(path)
			if err := vip.ReadInConfig(); err != nil {
				return nil, Error.Wrap(err)
			}
		} else if cfgFlag.Changed {
			return nil, Error.New("config file %s is not readable: %v", path, err)
		}
	}
	return vip, nil
}

// cleanup wraps every RunE in the command tree so that flags the
// command line left untouched are filled in from viper. Command line
// values always win over environment and config file values.
func cleanup(cmd *cobra.Command) {
	for _, ccmd := range cmd.Commands() {
		cleanup(ccmd)
	}
	if cmd.RunE == nil {
		return
	}
	internalRun := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		vip, err := Viper(cmd)
		if err != nil {
			return err
		}
		var failures errs.Group
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed || !vip.IsSet(f.Name) {
				return
			}
			value := vip.GetString(f.Name)
			if err := f.Value.Set(value); err != nil {
				failures.Add(Error.New("invalid value %q for flag %s: %v", value, f.Name, err))
			}
		})
		if err := failures.Err(); err != nil {
			return err
		}
		return internalRun(cmd, args)
	}
}

// Ctx returns the root context of a command, canceled by SIGINT or
// SIGTERM. Canceling releases the signal handler, so a second signal
// kills the process the default way.
func Ctx() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signals:
			log.Printf("received signal %q, shutting down", sig)
		case <-ctx.Done():
		}
		signal.Stop(signals)
		cancel()
	}()

	return ctx, cancel
}

// Must exits the process when err is set.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
