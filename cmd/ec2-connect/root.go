package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/tagconnect/internal/config"
)

const appName = "tagconnect"

var version = "0.1.0"

type connectFlags struct {
	tags       []string
	profile    string
	region     string
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&connectFlags{})
}

func newRootCmdWith(f *connectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ec2-connect",
		Short: "Open an SSM session on an EC2 instance found by its tags",
		Example: `  ec2-connect -t Environment=prod -t Role=bastion
  ec2-connect -p staging -r eu-west-1 -t Name=worker`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.tags, "tag", "t", nil, "Tag filter KEY=VALUE, repeatable, all must match")
	flags.StringVarP(&f.profile, "profile", "p", "", "AWS shared config profile")
	flags.StringVarP(&f.region, "region", "r", "", "AWS region (default from config, AWS_REGION, AWS_DEFAULT_REGION, else us-east-2)")
	flags.StringVar(&f.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/tagconnect/config.toml)")
	flags.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	cmd.SetVersionTemplate(`ec2-connect {{.Version}}
`)
	return cmd
}

func (f *connectFlags) toConfigFlags(cmd *cobra.Command) config.Flags {
	out := config.Flags{Tags: f.tags, Debug: f.debug}
	if cmd.Flags().Changed("profile") {
		out.Profile = &f.profile
	}
	if cmd.Flags().Changed("region") {
		out.Region = &f.region
	}
	return out
}

func (f *connectFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, explicit := f.configPath, cmd.Flags().Changed("config")
	if !explicit {
		path = config.DefaultPath(appName)
	}

	cfg, err := config.LoadOptional(path, explicit)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
