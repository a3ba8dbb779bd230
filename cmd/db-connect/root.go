package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/tagconnect/internal/config"
)

const appName = "tagconnect"

var version = "0.1.0"

// connectFlags are the raw command-line values of db-connect.
type connectFlags struct {
	tags       []string
	profile    string
	region     string
	endpoint   string
	auth       string
	user       string
	ssl        string
	configPath string
	allStates  bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&connectFlags{})
}

func newRootCmdWith(f *connectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db-connect",
		Short: "Connect to an RDS or Aurora database found by its tags",
		Long: `db-connect finds RDS instances and Aurora clusters whose tags match every
-t filter, lets you pick one, resolves credentials (IAM token, Secrets
Manager or a password prompt) and opens the matching SQL client in an
ephemeral container that is removed when the session ends.`,
		Example: `  db-connect -t Environment=prod -t Team=backend
  db-connect -t Name=analytics -e reader -a iam
  db-connect -t Service=billing -u readonly -s false
  db-connect -p staging -r eu-west-1`,
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
	flags.StringVarP(&f.endpoint, "endpoint", "e", "", "Cluster endpoint to list: reader or writer (default both)")
	flags.StringVarP(&f.auth, "auth", "a", "", "Auth method: iam, secret or manual (default auto-detect)")
	flags.StringVarP(&f.user, "user", "u", "", "Username for manual auth (default master username)")
	flags.StringVarP(&f.ssl, "ssl", "s", "true", "Require SSL: true or false")
	flags.StringVar(&f.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/tagconnect/config.toml)")
	flags.BoolVar(&f.allStates, "all-states", false, "Include databases that are not available")
	flags.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	cmd.SetVersionTemplate(`db-connect {{.Version}}
`)
	return cmd
}

// toConfigFlags keeps only the flags given on the command line so the config
// file can supply the rest.
func (f *connectFlags) toConfigFlags(cmd *cobra.Command) config.Flags {
	changed := cmd.Flags().Changed
	set := func(name string, v *string) *string {
		if changed(name) {
			return v
		}
		return nil
	}

	out := config.Flags{
		Tags:     f.tags,
		Profile:  set("profile", &f.profile),
		Region:   set("region", &f.region),
		Endpoint: set("endpoint", &f.endpoint),
		Auth:     set("auth", &f.auth),
		Username: set("user", &f.user),
		SSL:      set("ssl", &f.ssl),
		Debug:    f.debug,
	}
	if changed("all-states") {
		out.AllStates = &f.allStates
	}
	return out
}

// loadConfig loads --config, or the default path when present.
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
