// Package health reports pipeline availability over the gRPC health protocol
// and as a JSON snapshot for the HTTP API.
package health

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ciricc/court-transcriber/internal/monitor"
)

// PipelineService is the service name registered for the transcription pipeline.
const PipelineService = "court.transcriber.Pipeline"

const defaultWatchInterval = time.Second

type servingStatus = grpc_health_v1.HealthCheckResponse_ServingStatus

// Checker derives serving status from pipeline load. A registered service is
// reported NOT_SERVING while load exceeds the monitor's threshold, whatever
// status was set for it.
type Checker struct {
	grpc_health_v1.UnimplementedHealthServer

	mu            sync.RWMutex
	loadMonitor   monitor.LoadMonitor
	services      map[string]servingStatus
	watchInterval time.Duration
}

func NewChecker(loadMonitor monitor.LoadMonitor) *Checker {
	return &Checker{
		loadMonitor: loadMonitor,
		services: map[string]servingStatus{
			PipelineService: grpc_health_v1.HealthCheckResponse_SERVING,
		},
		watchInterval: defaultWatchInterval,
	}
}

func (c *Checker) Check(_ context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	st, err := c.status(req.GetService())
	if err != nil {
		return nil, err
	}
	return &grpc_health_v1.HealthCheckResponse{Status: st}, nil
}

// Watch sends the current status and then every change until the stream ends.
func (c *Checker) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	last, err := c.status(req.GetService())
	if err != nil {
		return err
	}
	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil {
		return err
	}

	ticker := time.NewTicker(c.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-ticker.C:
			st, err := c.status(req.GetService())
			if err != nil {
				st = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
			}
			if st == last {
				continue
			}
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
				return err
			}
			last = st
		}
	}
}

func (c *Checker) SetServingStatus(service string, st servingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[service] = st
}

func (c *Checker) status(service string) (servingStatus, error) {
	healthy := c.loadMonitor.IsHealthy()

	if service == "" {
		if healthy {
			return grpc_health_v1.HealthCheckResponse_SERVING, nil
		}
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING, nil
	}

	c.mu.RLock()
	st, ok := c.services[service]
	c.mu.RUnlock()
	if !ok {
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, status.Error(codes.NotFound, "service not found")
	}

	if st == grpc_health_v1.HealthCheckResponse_SERVING && !healthy {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING, nil
	}
	return st, nil
}

// Snapshot is the HTTP view of pipeline health.
type Snapshot struct {
	Status         string  `json:"status"`
	ActiveRuns     int64   `json:"active_runs"`
	MaxRuns        int64   `json:"max_runs"`
	LoadPercentage float64 `json:"load_percentage"`
}

func (c *Checker) Snapshot() Snapshot {
	st, _ := c.status(PipelineService)
	m := c.loadMonitor.GetMetrics()
	return Snapshot{
		Status:         st.String(),
		ActiveRuns:     m.ActiveRuns,
		MaxRuns:        m.MaxRuns,
		LoadPercentage: m.LoadPercentage,
	}
}

// Serving reports whether the pipeline service is currently SERVING.
func (c *Checker) Serving() bool {
	st, _ := c.status(PipelineService)
	return st == grpc_health_v1.HealthCheckResponse_SERVING
}

var _ grpc_health_v1.HealthServer = (*Checker)(nil)
