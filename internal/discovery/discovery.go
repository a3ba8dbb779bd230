// Package discovery finds database endpoints matching a tag filter set and
// normalizes standalone instances and Aurora clusters into one list.
package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	"github.com/yairfalse/tagconnect/internal/filter"
	awsplugin "github.com/yairfalse/tagconnect/internal/plugin/aws"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

// statusAvailable is the only status listed unless all states are requested.
const statusAvailable = "available"

// EndpointSelector limits which cluster endpoints are emitted.
type EndpointSelector int

const (
	// EndpointAll emits the writer and, when present, the reader.
	EndpointAll EndpointSelector = iota
	EndpointWriter
	EndpointReader
)

// ParseEndpointSelector parses the -e flag value. Empty means EndpointAll.
func ParseEndpointSelector(s string) (EndpointSelector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return EndpointAll, nil
	case "writer":
		return EndpointWriter, nil
	case "reader":
		return EndpointReader, nil
	default:
		return EndpointAll, fmt.Errorf("%q: %w", s, apperrors.ErrInvalidEndpoint)
	}
}

// String returns the flag spelling of the selector.
func (e EndpointSelector) String() string {
	switch e {
	case EndpointWriter:
		return "writer"
	case EndpointReader:
		return "reader"
	default:
		return "all"
	}
}

// Source provides the two RDS listings. Implemented by the AWS plugin client.
type Source interface {
	ListDBInstances(ctx context.Context) awsplugin.Listing[rdstypes.DBInstance]
	ListDBClusters(ctx context.Context) awsplugin.Listing[rdstypes.DBCluster]
}

// Options controls a discovery run.
type Options struct {
	Filters   *filter.Set
	Endpoints EndpointSelector
	AllStates bool // include resources that are not "available"
}

// Service discovers database endpoints.
type Service struct {
	source Source
}

// NewService creates a discovery service backed by source.
func NewService(source Source) *Service {
	return &Service{source: source}
}

// Discover lists instances and clusters, applies the filters, expands cluster
// endpoints and returns the records sorted by identifier.
func (s *Service) Discover(ctx context.Context, opts Options) (resource.Records, error) {
	filters := opts.Filters
	if filters == nil {
		filters = filter.New()
	}

	instances, clusters := s.fetch(ctx)

	records := make(resource.Records, 0, len(instances.Items)+2*len(clusters.Items))
	records = append(records, standaloneRecords(instances.Items, filters, opts.AllStates)...)
	records = append(records, clusterRecords(clusters.Items, filters, opts.Endpoints, opts.AllStates)...)
	records.Sort()

	log.Debug().
		Int("instances", len(instances.Items)).
		Int("clusters", len(clusters.Items)).
		Int("records", len(records)).
		Msg("discovery complete")

	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", filters.Describe("databases"), apperrors.ErrNoResourcesFound)
	}
	if err := records.Validate(); err != nil {
		return nil, err
	}

	return records, nil
}

// fetch runs both listings concurrently. A failed listing degrades to empty
// so that, for example, a denied cluster API still yields standalone instances.
func (s *Service) fetch(ctx context.Context) (awsplugin.Listing[rdstypes.DBInstance], awsplugin.Listing[rdstypes.DBCluster]) {
	var (
		instances awsplugin.Listing[rdstypes.DBInstance]
		clusters  awsplugin.Listing[rdstypes.DBCluster]
		g         errgroup.Group
	)

	g.Go(func() error {
		instances = s.source.ListDBInstances(ctx)
		return nil
	})
	g.Go(func() error {
		clusters = s.source.ListDBClusters(ctx)
		return nil
	})
	_ = g.Wait()

	if instances.Failed() {
		warnDegraded("db_instances", instances.Err)
		instances.Items = nil
	}
	if clusters.Failed() {
		warnDegraded("db_clusters", clusters.Err)
		clusters.Items = nil
	}

	return instances, clusters
}

func warnDegraded(listing string, err error) {
	log.Warn().
		Err(err).
		Str("listing", listing).
		Str("code", awsplugin.ErrorCode(err)).
		Msg("listing failed, continuing without it")
}

// standaloneRecords keeps instances that are not cluster members.
func standaloneRecords(instances []rdstypes.DBInstance, filters *filter.Set, allStates bool) []resource.Record {
	var records []resource.Record
	for _, instance := range instances {
		if aws.ToString(instance.DBClusterIdentifier) != "" {
			continue
		}
		if !allStates && aws.ToString(instance.DBInstanceStatus) != statusAvailable {
			continue
		}

		labels := awsplugin.RDSLabels(instance.TagList)
		if !filters.Matches(labels) {
			continue
		}

		r := resource.Record{
			Identifier: aws.ToString(instance.DBInstanceIdentifier),
			Engine:     aws.ToString(instance.Engine),
			Kind:       resource.Standalone,
			Role:       resource.RoleNone,
			Labels:     labels,
		}
		if instance.Endpoint != nil {
			r.Endpoint = aws.ToString(instance.Endpoint.Address)
			r.Port = aws.ToInt32(instance.Endpoint.Port)
		}
		records = append(records, r)
	}
	return records
}

// clusterRecords expands each matching cluster into writer and reader records.
func clusterRecords(clusters []rdstypes.DBCluster, filters *filter.Set, sel EndpointSelector, allStates bool) []resource.Record {
	var records []resource.Record
	for _, cluster := range clusters {
		if !allStates && aws.ToString(cluster.Status) != statusAvailable {
			continue
		}

		labels := awsplugin.RDSLabels(cluster.TagList)
		if !filters.Matches(labels) {
			continue
		}

		base := resource.Record{
			Identifier: aws.ToString(cluster.DBClusterIdentifier),
			Engine:     aws.ToString(cluster.Engine),
			Port:       aws.ToInt32(cluster.Port),
			Kind:       resource.Cluster,
			Labels:     labels,
		}

		writer := aws.ToString(cluster.Endpoint)
		reader := aws.ToString(cluster.ReaderEndpoint)

		if writer != "" && sel != EndpointReader {
			r := base
			r.Endpoint = writer
			r.Role = resource.RoleWriter
			records = append(records, r)
		}
		if reader != "" && sel != EndpointWriter {
			r := base
			r.Endpoint = reader
			r.Role = resource.RoleReader
			records = append(records, r)
		}
	}
	return records
}
