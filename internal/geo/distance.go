package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/domain"

	"googlemaps.github.io/maps"
)

const dependencyName = "distance_matrix"

var errNoRoute = errors.New("no known route")

// GoogleEstimator asks the Distance Matrix API for the driving distance between two addresses.
type GoogleEstimator struct {
	client  *maps.Client
	timeout time.Duration
}

func NewGoogleEstimator(cfg config.DistanceConfig, opts ...maps.ClientOption) (*GoogleEstimator, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, errors.New("google api key is required")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(cfg.GoogleAPIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleEstimator{client: client, timeout: timeout}, nil
}

func (g *GoogleEstimator) EstimateKm(ctx context.Context, origin, destination string) (float64, error) {
	if err := validateEnds(origin, destination); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsMetric,
	})
	if err != nil {
		return 0, domain.DependencyUnavailableError{Dependency: dependencyName, Err: err}
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, domain.DependencyUnavailableError{Dependency: dependencyName, Err: errors.New("empty response")}
	}

	el := resp.Rows[0].Elements[0]
	switch el.Status {
	case "OK":
		return roundKm(float64(el.Distance.Meters) / 1000), nil
	case "NOT_FOUND", "ZERO_RESULTS":
		return 0, domain.ValidationError{
			Field: "trips[0].end_location",
			Rule:  domain.RuleInvalid,
			Msg:   fmt.Sprintf("no driving route between %q and %q", origin, destination),
		}
	default:
		return 0, domain.DependencyUnavailableError{Dependency: dependencyName, Err: fmt.Errorf("element status %s", el.Status)}
	}
}

// ManualEstimator answers from a fixed table of operator-maintained routes.
// Lookups ignore case, surrounding spaces and direction.
type ManualEstimator struct {
	routes map[string]float64
}

func NewManualEstimator(routes []config.KnownRoute) *ManualEstimator {
	m := &ManualEstimator{routes: make(map[string]float64, len(routes))}
	for _, r := range routes {
		m.routes[routeKey(r.From, r.To)] = r.Km
	}
	return m
}

func (m *ManualEstimator) EstimateKm(_ context.Context, origin, destination string) (float64, error) {
	if err := validateEnds(origin, destination); err != nil {
		return 0, err
	}
	if km, ok := m.routes[routeKey(origin, destination)]; ok {
		return km, nil
	}
	return 0, domain.DependencyUnavailableError{Dependency: dependencyName, Err: errNoRoute}
}

// Chain tries each estimator in order and returns the first answer.
type Chain []domain.DistanceEstimator

func (c Chain) EstimateKm(ctx context.Context, origin, destination string) (float64, error) {
	err := error(domain.DependencyUnavailableError{Dependency: dependencyName, Err: errNoRoute})
	for _, e := range c {
		var km float64
		km, err = e.EstimateKm(ctx, origin, destination)
		if err == nil {
			return km, nil
		}
		if domain.IsValidation(err) {
			return 0, err
		}
	}
	return 0, err
}

func validateEnds(origin, destination string) error {
	if strings.TrimSpace(origin) == "" {
		return domain.ValidationError{Field: "from", Rule: domain.RuleRequired, Msg: "origin is required"}
	}
	if strings.TrimSpace(destination) == "" {
		return domain.ValidationError{Field: "to", Rule: domain.RuleRequired, Msg: "destination is required"}
	}
	return nil
}

func routeKey(a, b string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func roundKm(km float64) float64 {
	return math.Round(km*10) / 10
}
