package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/processstate"
)

// Checker performs a single liveness probe. The context carries the check
// timeout.
type Checker interface {
	Check(ctx context.Context) (up bool, message string)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) (bool, string)

func (f CheckerFunc) Check(ctx context.Context) (bool, string) {
	return f(ctx)
}

// PIDProvider returns the PID of the managed process, or 0 when there is none.
type PIDProvider func() int

// NewChecker builds the probe for config.Type. Unknown types always report down.
func NewChecker(config *HealthCheckConfig, pid PIDProvider, logger logging.Logger) Checker {
	switch config.Type {
	case HealthCheckTypeHTTP:
		return &httpChecker{config: config.HTTP, client: &http.Client{}, logger: logger}
	case HealthCheckTypeGRPC:
		return &grpcChecker{config: config.GRPC, logger: logger}
	case HealthCheckTypeTCP:
		return &tcpChecker{config: config.TCP}
	case HealthCheckTypeExec:
		return &execChecker{config: config.Exec}
	case HealthCheckTypeProcess:
		return &processChecker{pid: pid}
	default:
		return CheckerFunc(func(context.Context) (bool, string) {
			return false, "Unknown health check type: " + string(config.Type)
		})
	}
}

type httpChecker struct {
	config HTTPHealthCheckConfig
	client *http.Client
	logger logging.Logger
}

func (c *httpChecker) Check(ctx context.Context) (bool, string) {
	method := c.config.PMethod
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("Failed to create HTTP request: %v", err)
	}
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, fmt.Sprintf("HTTP health check passed: %s", resp.Status)
	}
	return false, fmt.Sprintf("HTTP health check failed: %s", resp.Status)
}

type grpcChecker struct {
	config GRPCHealthCheckConfig
	logger logging.Logger
}

func (c *grpcChecker) Check(ctx context.Context) (bool, string) {
	conn, err := grpc.NewClient(c.config.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false, fmt.Sprintf("gRPC client creation failed: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: c.config.Service})
	if err != nil {
		return false, fmt.Sprintf("gRPC health check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return false, fmt.Sprintf("gRPC service not serving: %s", resp.GetStatus())
	}
	return true, fmt.Sprintf("gRPC service serving at %s", c.config.Address)
}

type tcpChecker struct {
	config TCPHealthCheckConfig
}

func (c *tcpChecker) Check(ctx context.Context) (bool, string) {
	address := net.JoinHostPort(c.config.Address, strconv.Itoa(c.config.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	conn.Close()

	return true, fmt.Sprintf("TCP connection successful to %s", address)
}

type execChecker struct {
	config ExecHealthCheckConfig
}

func (c *execChecker) Check(ctx context.Context) (bool, string) {
	output, err := exec.CommandContext(ctx, c.config.Command, c.config.Args...).CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return false, "Exec health check timed out"
	}
	if err != nil {
		return false, fmt.Sprintf("Exec health check failed: %v, output: %s", err, string(output))
	}
	return true, fmt.Sprintf("Exec health check passed, output: %s", string(output))
}

type processChecker struct {
	pid PIDProvider
}

func (c *processChecker) Check(ctx context.Context) (bool, string) {
	if c.pid == nil {
		return false, "Process health check has no process information"
	}
	pid := c.pid()
	if pid <= 0 {
		return false, "Process not started"
	}

	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		return false, fmt.Sprintf("Process state check failed: PID %d: %v", pid, err)
	}
	if !running {
		return false, fmt.Sprintf("Process not running: PID %d", pid)
	}
	return true, fmt.Sprintf("Process is running: PID %d", pid)
}
