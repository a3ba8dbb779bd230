package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/term"

	"github.com/yairfalse/tagconnect/internal/auth"
	"github.com/yairfalse/tagconnect/internal/config"
	"github.com/yairfalse/tagconnect/internal/container/docker"
	"github.com/yairfalse/tagconnect/internal/discovery"
	"github.com/yairfalse/tagconnect/internal/dispatch"
	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	awsplugin "github.com/yairfalse/tagconnect/internal/plugin/aws"
	"github.com/yairfalse/tagconnect/internal/selector"
	"github.com/yairfalse/tagconnect/internal/telemetry"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

// awsBackend is what the pipeline needs from the AWS plugin.
type awsBackend interface {
	discovery.Source
	auth.TokenGenerator
	auth.SecretFetcher
	DescribeTarget(ctx context.Context, rec resource.Record) (resource.Target, error)
	Identity(ctx context.Context) (awsplugin.Identity, error)
}

type recordSelector interface {
	SelectRecord(records resource.Records) (resource.Record, error)
}

type connector interface {
	Connect(ctx context.Context, req dispatch.Request) error
}

// pipeline runs one db-connect invocation: discover, select, describe,
// resolve and connect. Every stage reads the same immutable Options.
type pipeline struct {
	opts      config.Options
	backend   awsBackend
	selector  recordSelector
	password  auth.PasswordReader
	connector connector
	telemetry *telemetry.Provider
}

func (p *pipeline) run(ctx context.Context) error {
	if id, err := p.backend.Identity(ctx); err == nil {
		log.Debug().Str("account", id.Account).Str("arn", id.ARN).Msg("aws identity")
	} else {
		log.Debug().Err(err).Msg("could not resolve aws identity")
	}

	log.Info().
		Str("region", p.opts.Region).
		Str("filters", p.opts.Filters.Describe("databases")).
		Str("endpoint", p.opts.Endpoints.String()).
		Msg("discovering databases")

	records, err := p.discover(ctx)
	if err != nil {
		return apperrors.New("discover", err)
	}

	record, err := p.selectRecord(ctx, records)
	if err != nil {
		return apperrors.New("select", err)
	}

	target, err := p.backend.DescribeTarget(ctx, record)
	if err != nil {
		return apperrors.New("describe "+record.Identifier, err)
	}

	creds, err := p.resolve(ctx, target)
	if err != nil {
		return apperrors.New("resolve auth", err)
	}

	return apperrors.New("connect", p.connect(ctx, record, target, creds))
}

func (p *pipeline) discover(ctx context.Context) (resource.Records, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "discover", attribute.String("region", p.opts.Region))

	records, err := discovery.NewService(p.backend).Discover(ctx, discovery.Options{
		Filters:   p.opts.Filters,
		Endpoints: p.opts.Endpoints,
		AllStates: p.opts.AllStates,
	})
	p.telemetry.EndSpan(ctx, span, "discover", err)
	if err != nil {
		return nil, err
	}

	counts := map[resource.Kind]int{}
	for _, r := range records {
		counts[r.Kind]++
	}
	for kind, n := range counts {
		p.telemetry.RecordDiscovered(ctx, p.opts.Region, kind.String(), n)
	}
	return records, nil
}

func (p *pipeline) selectRecord(ctx context.Context, records resource.Records) (resource.Record, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "select", attribute.Int("candidates", len(records)))
	record, err := p.selector.SelectRecord(records)
	p.telemetry.EndSpan(ctx, span, "select", err)
	if err != nil {
		return resource.Record{}, err
	}

	log.Debug().Ctx(ctx).
		Str("identifier", record.Identifier).
		Str("endpoint", record.Endpoint).
		Str("role", record.Role.String()).
		Msg("database selected")
	return record, nil
}

func (p *pipeline) resolve(ctx context.Context, target resource.Target) (auth.Credentials, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "resolve")
	resolver := auth.NewResolver(p.backend, p.backend, p.password)
	creds, err := resolver.Resolve(ctx, auth.Request{
		Target:   target,
		Method:   p.opts.Auth,
		Username: p.opts.Username,
	})
	p.telemetry.EndSpan(ctx, span, "resolve", err)
	if err != nil {
		return auth.Credentials{}, err
	}

	p.telemetry.RecordAuthMethod(ctx, creds.Method.String())
	log.Info().Object("credentials", creds).Msg("credentials resolved")
	return creds, nil
}

func (p *pipeline) connect(ctx context.Context, record resource.Record, target resource.Target, creds auth.Credentials) error {
	ctx, span := p.telemetry.StartSpan(ctx, "connect",
		attribute.String("engine", record.Engine),
		attribute.Bool("ssl", p.opts.SSL),
	)

	log.Info().
		Str("host", target.Host).
		Int32("port", target.Port).
		Str("database", target.DatabaseName).
		Msg("connecting")

	start := time.Now()
	err := p.connector.Connect(ctx, dispatch.Request{
		Engine:      record.Engine,
		Target:      target,
		Credentials: creds,
		SSL:         p.opts.SSL,
	})
	p.telemetry.RecordSession(ctx, record.Engine, time.Since(start))
	p.telemetry.EndSpan(ctx, span, "connect", err)
	return err
}

func runConnect(cmd *cobra.Command, f *connectFlags) error {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := config.Resolve(cfg, f.toConfigFlags(cmd), os.LookupEnv, true)
	if err != nil {
		return err
	}
	setupLogging(opts.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tel, err := telemetry.NewProvider(ctx, opts.OTEL)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)

	backend, err := awsplugin.New(ctx, awsplugin.Config{Region: opts.Region, Profile: opts.Profile})
	if err != nil {
		return err
	}

	in, fd, closeInput := interactiveInput()
	defer closeInput()

	rt, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer rt.Close()

	var dispatchOpts []dispatch.Option
	if opts.SessionPrefix != "" {
		dispatchOpts = append(dispatchOpts, dispatch.WithSessionPrefix(opts.SessionPrefix))
	}

	p := &pipeline{
		opts:      opts,
		backend:   backend,
		selector:  selector.New(in, os.Stderr),
		password:  auth.TerminalPasswordReader(fd, os.Stderr),
		connector: dispatch.NewDispatcher(rt, dispatchOpts...),
		telemetry: tel,
	}
	return p.run(ctx)
}

// interactiveInput returns the controlling terminal, or stdin when there is
// none (for example under cron, where only single matches can succeed).
func interactiveInput() (io.Reader, int, func()) {
	tty, err := selector.OpenTTY()
	if err != nil {
		log.Debug().Err(err).Msg("no controlling terminal, reading from stdin")
		return os.Stdin, int(os.Stdin.Fd()), func() {}
	}
	return tty, int(tty.Fd()), func() { _ = tty.Close() }
}

func setupLogging(level string) {
	log.Logger = telemetry.NewLogger(os.Stderr, level, term.IsTerminal(int(os.Stderr.Fd())))
}

func shutdownTelemetry(tel *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Debug().Err(err).Msg("telemetry shutdown")
	}
}
