// Package resource defines the normalized records tagconnect selects from.
package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies where a database record came from.
type Kind int

const (
	// Standalone is a DB instance that is not a member of a cluster.
	Standalone Kind = iota
	// Cluster is an endpoint of a DB cluster (Aurora or Multi-AZ).
	Cluster
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Standalone:
		return "standalone"
	case Cluster:
		return "cluster"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Role is the endpoint role of a record. Standalone records have RoleNone.
type Role int

const (
	RoleNone Role = iota
	RoleWriter
	RoleReader
)

// String returns the role name, empty for RoleNone.
func (r Role) String() string {
	switch r {
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	default:
		return ""
	}
}

// Record is one connectable database endpoint.
// A cluster with both endpoints produces two records sharing Identifier and Engine.
type Record struct {
	Identifier string            `json:"identifier"` // DB instance or cluster identifier
	Engine     string            `json:"engine"`     // RDS engine name (e.g., "aurora-postgresql")
	Endpoint   string            `json:"endpoint"`   // Host name
	Port       int32             `json:"port"`       // 0 when the listing did not report one
	Kind       Kind              `json:"kind"`
	Role       Role              `json:"role"`
	Labels     map[string]string `json:"labels"` // AWS tags
}

// Tag returns the classification shown next to the record in menus.
// Multi-AZ DB clusters run non-Aurora engines and are tagged [Cluster].
func (r Record) Tag() string {
	if r.Kind != Cluster {
		return "[RDS]"
	}
	if strings.HasPrefix(strings.ToLower(r.Engine), "aurora") {
		return "[Aurora]"
	}
	return "[Cluster]"
}

// Key returns the (identifier, role) pair that is unique within a discovery result.
func (r Record) Key() string {
	return r.Identifier + "|" + r.Role.String()
}

// Records is a discovery result.
type Records []Record

// Sort orders records by identifier, writer before reader for the same cluster.
func (rs Records) Sort() {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Identifier != rs[j].Identifier {
			return rs[i].Identifier < rs[j].Identifier
		}
		return rs[i].Role < rs[j].Role
	})
}

// Validate checks that (identifier, role) pairs are unique.
func (rs Records) Validate() error {
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if seen[r.Key()] {
			return fmt.Errorf("duplicate record %s (%s)", r.Identifier, r.Role)
		}
		seen[r.Key()] = true
	}
	return nil
}

// Target is the connection detail fetched after a record is selected.
type Target struct {
	Host           string
	Port           int32
	DatabaseName   string
	MasterUsername string
	IAMAuthEnabled bool
	SecretARN      string // empty when no managed master secret exists
}

// Instance is a running EC2 instance discovered by ec2-connect.
type Instance struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	State        string            `json:"state"`
	InstanceType string            `json:"instance_type"`
	PrivateIP    string            `json:"private_ip"`
	PublicIP     string            `json:"public_ip"`
	Labels       map[string]string `json:"labels"`
}

// SortInstances orders instances by Name, then ID. Unnamed instances sort first.
func SortInstances(instances []Instance) {
	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].Name != instances[j].Name {
			return instances[i].Name < instances[j].Name
		}
		return instances[i].ID < instances[j].ID
	})
}
