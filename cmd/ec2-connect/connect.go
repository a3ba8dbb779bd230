package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/term"

	"github.com/yairfalse/tagconnect/internal/config"
	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	awsplugin "github.com/yairfalse/tagconnect/internal/plugin/aws"
	"github.com/yairfalse/tagconnect/internal/selector"
	"github.com/yairfalse/tagconnect/internal/telemetry"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

type instanceLister interface {
	ListInstances(ctx context.Context, filters []ec2types.Filter) ([]resource.Instance, error)
}

type instanceSelector interface {
	SelectInstance(instances []resource.Instance) (resource.Instance, error)
}

// sessionStarter runs argv with the terminal attached.
type sessionStarter func(ctx context.Context, argv []string) error

type pipeline struct {
	opts      config.Options
	lister    instanceLister
	selector  instanceSelector
	start     sessionStarter
	telemetry *telemetry.Provider
}

func (p *pipeline) run(ctx context.Context) error {
	log.Info().
		Str("region", p.opts.Region).
		Str("filters", p.opts.Filters.Describe("instances")).
		Msg("discovering instances")

	ctx, span := p.telemetry.StartSpan(ctx, "discover", attribute.String("region", p.opts.Region))
	instances, err := p.lister.ListInstances(ctx, p.opts.Filters.EC2Filters())
	if err == nil && len(instances) == 0 {
		err = fmt.Errorf("%s: %w", p.opts.Filters.Describe("running instances"), apperrors.ErrNoResourcesFound)
	}
	p.telemetry.EndSpan(ctx, span, "discover", err)
	if err != nil {
		return apperrors.New("discover", err)
	}
	p.telemetry.RecordDiscovered(ctx, p.opts.Region, "ec2", len(instances))

	resource.SortInstances(instances)
	instance, err := p.selector.SelectInstance(instances)
	if err != nil {
		return apperrors.New("select", err)
	}

	argv := ssmArgs(instance.ID, p.opts.Region, p.opts.Profile)
	log.Info().Str("instance", instance.ID).Str("name", instance.Name).Msg("starting ssm session")

	start := time.Now()
	err = p.start(ctx, argv)
	p.telemetry.RecordSession(ctx, "ssm", time.Since(start))
	return apperrors.New("connect", err)
}

// ssmArgs builds the aws CLI argv. Values are separate arguments, never
// joined into a shell string.
func ssmArgs(instanceID, region, profile string) []string {
	argv := []string{"aws", "ssm", "start-session", "--target", instanceID, "--region", region}
	if profile != "" {
		argv = append(argv, "--profile", profile)
	}
	return argv
}

func execSession(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSessionExit, err)
	}
	return nil
}

func runConnect(cmd *cobra.Command, f *connectFlags) error {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return err
	}

	// EC2 filters travel as structured API parameters, so quotes in tag
	// values are harmless here.
	opts, err := config.Resolve(cfg, f.toConfigFlags(cmd), os.LookupEnv, false)
	if err != nil {
		return err
	}
	log.Logger = telemetry.NewLogger(os.Stderr, opts.LogLevel, term.IsTerminal(int(os.Stderr.Fd())))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tel, err := telemetry.NewProvider(ctx, opts.OTEL)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(sctx)
	}()

	client, err := awsplugin.New(ctx, awsplugin.Config{Region: opts.Region, Profile: opts.Profile})
	if err != nil {
		return err
	}

	var prompt *selector.Prompt
	if tty, err := selector.OpenTTY(); err == nil {
		defer tty.Close()
		prompt = selector.New(tty, os.Stderr)
	} else {
		prompt = selector.New(os.Stdin, os.Stderr)
	}

	p := &pipeline{
		opts:      opts,
		lister:    client,
		selector:  prompt,
		start:     execSession,
		telemetry: tel,
	}
	return p.run(ctx)
}
