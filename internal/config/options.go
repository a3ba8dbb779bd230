package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yairfalse/tagconnect/internal/auth"
	"github.com/yairfalse/tagconnect/internal/discovery"
	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	"github.com/yairfalse/tagconnect/internal/filter"
	awsplugin "github.com/yairfalse/tagconnect/internal/plugin/aws"
)

// Flags carries command-line values. A nil pointer means the flag was not
// given and the file or environment decides.
type Flags struct {
	Tags      []string
	Profile   *string
	Region    *string
	Endpoint  *string
	Auth      *string
	Username  *string
	SSL       *string
	AllStates *bool
	Debug     bool
}

// Options is the validated invocation context handed to every pipeline stage.
// It is built once by Resolve and passed by value.
type Options struct {
	Profile   string
	Region    string
	Filters   *filter.Set
	Endpoints discovery.EndpointSelector
	Auth      auth.Method
	Username  string
	SSL       bool
	AllStates bool

	SessionPrefix string
	LogLevel      string
	OTEL          OTELConfig
}

// Resolve merges flags over the file over the environment. lookupEnv is
// os.LookupEnv outside of tests. strict enables unsafe-character rejection
// on tag filters.
func Resolve(cfg *Config, flags Flags, lookupEnv func(string) (string, bool), strict bool) (Options, error) {
	if cfg == nil {
		cfg = Default()
	}

	filters := filter.New()
	if strict {
		filters = filter.NewStrict()
	}
	if err := filters.AddAll(flags.Tags); err != nil {
		return Options{}, err
	}

	endpoints, err := discovery.ParseEndpointSelector(pick(flags.Endpoint, cfg.Connect.Endpoint))
	if err != nil {
		return Options{}, err
	}

	method, err := auth.ParseMethod(pick(flags.Auth, cfg.Connect.Auth))
	if err != nil {
		return Options{}, err
	}

	ssl := true
	if cfg.Connect.SSL != nil {
		ssl = *cfg.Connect.SSL
	}
	if flags.SSL != nil {
		ssl, err = ParseSSL(*flags.SSL)
		if err != nil {
			return Options{}, err
		}
	}

	allStates := cfg.Connect.AllStates
	if flags.AllStates != nil {
		allStates = *flags.AllStates
	}

	level := cfg.Log.Level
	if flags.Debug {
		level = "debug"
	}

	return Options{
		Profile:       pick(flags.Profile, cfg.AWS.Profile),
		Region:        resolveRegion(flags.Region, cfg.AWS.Region, lookupEnv),
		Filters:       filters,
		Endpoints:     endpoints,
		Auth:          method,
		Username:      pick(flags.Username, ""),
		SSL:           ssl,
		AllStates:     allStates,
		SessionPrefix: cfg.Connect.SessionPrefix,
		LogLevel:      level,
		OTEL:          cfg.OTEL,
	}, nil
}

// ParseSSL accepts exactly "true" or "false".
func ParseSSL(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", strconv.Quote(s), apperrors.ErrInvalidSSL)
	}
}

func resolveRegion(flag *string, file string, lookupEnv func(string) (string, bool)) string {
	if flag != nil && *flag != "" {
		return *flag
	}
	if file != "" {
		return file
	}
	for _, key := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
		if v, ok := lookupEnv(key); ok && v != "" {
			return v
		}
	}
	return awsplugin.DefaultRegion
}

func pick(flag *string, fallback string) string {
	if flag != nil {
		return *flag
	}
	return fallback
}
