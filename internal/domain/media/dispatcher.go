package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// Plan is the outcome of dispatching a request: which adapter runs it and how.
type Plan struct {
	Route       Route
	Mode        model.GenerationMode
	Adapter     outbound.MediaVendorAdapterPort
	Credentials model.Credentials
}

// Dispatcher routes requests to provider adapters. It performs no network I/O.
type Dispatcher struct {
	routes      *RoutingTable
	registry    outbound.MediaVendorRegistryPort
	credentials outbound.CredentialStorePort
}

// NewDispatcher creates a dispatcher over a validated routing table.
func NewDispatcher(routes *RoutingTable, registry outbound.MediaVendorRegistryPort, credentials outbound.CredentialStorePort) *Dispatcher {
	return &Dispatcher{
		routes:      routes,
		registry:    registry,
		credentials: credentials,
	}
}

// Dispatch selects the adapter and mode for req and resolves its credentials.
// Validation errors come before credential errors, and every missing credential is named.
func (d *Dispatcher) Dispatch(ctx context.Context, req *model.GenerationRequest) (*Plan, error) {
	route, err := d.routes.Match(req.ModelID)
	if err != nil {
		return nil, err
	}
	adapter, err := d.registry.Get(route.Provider)
	if err != nil {
		return nil, err
	}

	mode, err := SelectMode(req, route)
	if err != nil {
		return nil, err
	}
	if !adapter.Capabilities().Supports(req.Kind, mode) {
		return nil, model.UnsupportedCombination("%s does not support %s mode for %s", req.ModelID, mode, req.Kind)
	}

	creds := make(model.Credentials)
	var missing []string
	for _, name := range adapter.RequiredCredentials() {
		v, ok := d.credentials.Lookup(ctx, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		creds[name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s requires %s", model.ErrMissingCredentials, route.Provider, strings.Join(missing, ", "))
	}

	return &Plan{
		Route:       route,
		Mode:        mode,
		Adapter:     adapter,
		Credentials: creds,
	}, nil
}
