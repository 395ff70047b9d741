package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
)

type flagOptions struct {
	Address     string `long:"address" default:"127.0.0.1:4050" description:"address of the HTTP API"`
	GRPCAddress string `long:"grpc-address" description:"address of the gRPC health service, disabled when empty"`
	StartDelay  int    `long:"start-delay" description:"seconds before the API starts answering healthchecks"`
	RunDuration int    `long:"run-duration" description:"seconds to run before exiting (debug feature)"`
	ConfigDir   string `long:"config-dir" description:"configuration directory"`
	RuntimeDir  string `long:"runtime-dir" description:"runtime directory"`
}

// fakeClient serves the subset of the client API the shell talks to.
type fakeClient struct {
	started time.Time
	delay   time.Duration

	mutex     sync.Mutex
	status    tequilapi.ConnectionStatus
	sessionID string
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running fake client, opts: %+v...\n", opts)

	ctx := context.Background()
	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	client := &fakeClient{
		started: time.Now(),
		delay:   time.Duration(opts.StartDelay) * time.Second,
		status:  tequilapi.StatusNotConnected,
	}

	server := &http.Server{Addr: opts.Address, Handler: client.routes()}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP API failed: %v\n", err)
			os.Exit(1)
		}
	}()

	var grpcServer *grpc.Server
	if opts.GRPCAddress != "" {
		grpcServer, err = serveHealth(opts.GRPCAddress)
		if err != nil {
			fmt.Printf("gRPC health service failed: %v\n", err)
			os.Exit(1)
		}
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	fmt.Printf("Fake client is listening on %s\n", opts.Address)

	select {
	case receivedSignal := <-sig:
		fmt.Printf("Fake client received signal: %v\n", receivedSignal)
	case <-ctx.Done():
		fmt.Printf("Fake client timed out\n")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	fmt.Printf("Fake client stopped\n")
}

func serveHealth(address string) (*grpc.Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	go server.Serve(listener)
	return server, nil
}

func (c *fakeClient) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthcheck", c.healthcheck)
	mux.HandleFunc("/proposals", c.proposals)
	mux.HandleFunc("/connection", c.connection)
	return mux
}

func (c *fakeClient) healthcheck(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(c.started)
	if uptime < c.delay {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, tequilapi.HealthcheckResponse{
		Uptime:  uptime.Round(time.Second).String(),
		Process: os.Getpid(),
		Version: "fake",
	})
}

func (c *fakeClient) proposals(w http.ResponseWriter, r *http.Request) {
	proposals := []tequilapi.Proposal{
		{ID: 1, ProviderID: "0x0000000000000000000000000000000000000001", ServiceType: "openvpn"},
		{ID: 2, ProviderID: "0x0000000000000000000000000000000000000002", ServiceType: "wireguard"},
	}
	proposals[0].ServiceDefinition.LocationOriginate.Country = "NL"
	proposals[1].ServiceDefinition.LocationOriginate.Country = "DE"
	writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": proposals})
}

func (c *fakeClient) connection(w http.ResponseWriter, r *http.Request) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, tequilapi.ConnectionStatusResponse{Status: c.status, SessionID: c.sessionID})
	case http.MethodPut:
		c.status = tequilapi.StatusConnected
		c.sessionID = fmt.Sprintf("fake-%d", time.Now().UnixNano())
		writeJSON(w, http.StatusCreated, tequilapi.ConnectionStatusResponse{Status: c.status, SessionID: c.sessionID})
	case http.MethodDelete:
		if c.status != tequilapi.StatusConnected {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "no connection exists"})
			return
		}
		c.status = tequilapi.StatusNotConnected
		c.sessionID = ""
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
