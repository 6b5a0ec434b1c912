package auth

import "strings"

// Status API paths.
const (
	PathReadings      = "/api/v1/readings"
	PathLatest        = "/api/v1/readings/latest"
	PathExportsPrefix = "/api/v1/readings/export."
	PathHealth        = "/healthz"
	PathMetrics       = "/metrics"
)

type route struct {
	path   string
	prefix bool
	role   Role
}

// Policy maps request paths to the role they require.
type Policy struct {
	open   map[string]struct{}
	routes []route
}

// ReadingsPolicy guards the readings API: reads need a viewer, exports an
// operator. Health and metrics stay open for health checks and scrapers.
func ReadingsPolicy() Policy {
	return Policy{
		open: map[string]struct{}{PathHealth: {}, PathMetrics: {}},
		routes: []route{
			{path: PathExportsPrefix, prefix: true, role: RoleOperator},
			{path: PathLatest, role: RoleViewer},
			{path: PathReadings, role: RoleViewer},
		},
	}
}

// Required returns the role needed for path. guarded is false for open paths.
// Paths outside the table need a viewer so unknown routes never leak
// unauthenticated.
func (p Policy) Required(path string) (role Role, guarded bool) {
	if _, ok := p.open[path]; ok {
		return "", false
	}
	for _, rt := range p.routes {
		if rt.path == path || (rt.prefix && strings.HasPrefix(path, rt.path)) {
			return rt.role, true
		}
	}
	return RoleViewer, true
}
