package monitoring

import (
	"testing"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateHealthCheckConfig(t *testing.T) {
	runOptions := HealthCheckRunOptions{
		Interval: 1500 * time.Millisecond,
		Timeout:  time.Second,
	}

	tests := []struct {
		name      string
		config    HealthCheckConfig
		shouldErr bool
	}{
		{
			name:      "default_config",
			config:    DefaultHealthCheckConfig(),
			shouldErr: false,
		},
		{
			name: "http_without_url",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeHTTP,
				RunOptions: runOptions,
			},
			shouldErr: true,
		},
		{
			name: "grpc_whole_server",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeGRPC,
				GRPC:       GRPCHealthCheckConfig{Address: "127.0.0.1:4051"},
				RunOptions: runOptions,
			},
			shouldErr: false,
		},
		{
			name: "grpc_without_address",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeGRPC,
				RunOptions: runOptions,
			},
			shouldErr: true,
		},
		{
			name: "tcp_port_out_of_range",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeTCP,
				TCP:        TCPHealthCheckConfig{Address: "127.0.0.1", Port: 70000},
				RunOptions: runOptions,
			},
			shouldErr: true,
		},
		{
			name: "exec_without_command",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeExec,
				RunOptions: runOptions,
			},
			shouldErr: true,
		},
		{
			name: "process",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeProcess,
				RunOptions: runOptions,
			},
			shouldErr: false,
		},
		{
			name: "unsupported_type",
			config: HealthCheckConfig{
				Type:       HealthCheckType("icmp"),
				RunOptions: runOptions,
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHealthCheckConfig(tt.config)

			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHealthCheckRunOptions(t *testing.T) {
	tests := []struct {
		name      string
		options   HealthCheckRunOptions
		shouldErr bool
	}{
		{"valid", HealthCheckRunOptions{Interval: 2 * time.Second, Timeout: time.Second}, false},
		{"zero_interval", HealthCheckRunOptions{Timeout: time.Second}, true},
		{"zero_timeout", HealthCheckRunOptions{Interval: time.Second}, true},
		{"timeout_not_below_interval", HealthCheckRunOptions{Interval: time.Second, Timeout: time.Second}, true},
		{"negative_initial_delay", HealthCheckRunOptions{Interval: 2 * time.Second, Timeout: time.Second, InitialDelay: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHealthCheckRunOptions(tt.options)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
