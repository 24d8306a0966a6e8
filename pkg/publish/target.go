// Package publish implements the Publish Layer: exposing a Nexus through
// an NVMe-oF subsystem, an iSCSI target, or a local kernel block binding,
// and managing that listener's lifetime.
//
// Grounded on pkg/controlplane/api.Server's Start/Stop shape (an
// http.Server wrapped with a graceful, bounded-timeout Shutdown),
// generalized from one HTTP listener to a pluggable publish.Target behind
// a protocol-keyed constructor, since the real NVMe-oF/iSCSI subsystem
// binding is delegated per the spec's scope.
package publish

import (
	"context"
	"fmt"
)

// Protocol identifies which transport a Nexus is published over.
type Protocol string

const (
	ProtocolNVMf  Protocol = "nvmf"
	ProtocolISCSI Protocol = "iscsi"
	ProtocolLocal Protocol = "local"
)

// Target is a publishable listener for one transport protocol. Listen
// allocates the listener and returns the client-addressable endpoint URI;
// Drain quiesces new connections and waits (up to a caller-bounded
// deadline on ctx) for in-flight sessions to finish; Close tears the
// listener down unconditionally.
type Target interface {
	// Listen allocates the listener and returns the endpoint URI clients
	// should connect to.
	Listen(ctx context.Context) (endpoint string, err error)

	// Endpoint returns the endpoint URI from the most recent Listen call.
	Endpoint() string

	// Drain stops accepting new connections and waits for in-flight
	// sessions to finish, bounded by ctx's deadline.
	Drain(ctx context.Context) error

	// Close releases the listener unconditionally.
	Close(ctx context.Context) error
}

// NewTarget constructs a Target for the given protocol. nexusName and
// subsystemOrTargetName identify the published subsystem/IQN/LUN; for
// nvmf/iscsi, listenAddr is the host:port the backing TCP stand-in
// listener binds.
func NewTarget(protocol Protocol, nexusName, listenAddr, subsystemOrTargetName string) (Target, error) {
	switch protocol {
	case ProtocolNVMf:
		return newTCPTarget(protocol, nexusName, listenAddr, subsystemOrTargetName, formatNVMfEndpoint), nil
	case ProtocolISCSI:
		return newTCPTarget(protocol, nexusName, listenAddr, subsystemOrTargetName, formatISCSIEndpoint), nil
	case ProtocolLocal:
		return newLocalTarget(nexusName), nil
	default:
		return nil, fmt.Errorf("publish: unknown protocol %q", protocol)
	}
}

func formatNVMfEndpoint(addr, nqn string) string {
	return fmt.Sprintf("nvmf://%s/%s", addr, nqn)
}

func formatISCSIEndpoint(addr, iqn string) string {
	return fmt.Sprintf("iscsi://%s/%s", addr, iqn)
}
