// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

// Package process provides shared process setup for feesim commands:
// flag and config file handling plus logger construction.
package process

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func defaultConfigPath(name string) string {
	if name == "" {
		name = filepath.Base(os.Args[0])
	}
	path := filepath.Join(".feesim", fmt.Sprintf("%s.yaml", name))
	home, err := os.UserHomeDir()
	if err != nil {
		log.Println(err)
		return path
	}
	return filepath.Join(home, path)
}

// Exec runs a *cobra.Command and sets up process-wide configuration
// like a configuration file and environment binding. Flags registered
// on the standard flag set, such as the log.* flags, become persistent
// flags of cmd.
func Exec(cmd *cobra.Command) {
	cfgFile := flag.String("config", defaultConfigPath(cmd.Name()), "config file")

	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cobra.OnInitialize(func() {
		viper.BindPFlags(cmd.Flags())
		viper.SetEnvPrefix("feesim")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()
		if *cfgFile != "" {
			viper.SetConfigFile(*cfgFile)
			viper.ReadInConfig()
		}
	})

	Must(cmd.Execute())
}

// ApplyViper copies config file and environment values into any flag
// of cmd that was not set on the command line.
func ApplyViper(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.VisitAll(func(f *pflag.Flag) {
		if !f.Changed && viper.IsSet(f.Name) {
			_ = flags.Set(f.Name, viper.GetString(f.Name))
		}
	})
}

// Must exits the process when err is set.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
