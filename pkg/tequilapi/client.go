// Package tequilapi is a typed HTTP client for the local REST API exposed by
// the VPN client process.
package tequilapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
)

const (
	DefaultAddress = "http://127.0.0.1:4050"
	DefaultTimeout = 5 * time.Second
)

type ConnectionStatus string

const (
	StatusConnected     ConnectionStatus = "Connected"
	StatusNotConnected  ConnectionStatus = "NotConnected"
	StatusConnecting    ConnectionStatus = "Connecting"
	StatusDisconnecting ConnectionStatus = "Disconnecting"
)

type HealthcheckResponse struct {
	Uptime  string `json:"uptime"`
	Process int    `json:"process"`
	Version string `json:"version,omitempty"`
}

type ServiceDefinition struct {
	LocationOriginate Location `json:"locationOriginate"`
}

type Location struct {
	ASN     string `json:"asn,omitempty"`
	Country string `json:"country,omitempty"`
}

type Proposal struct {
	ID                int               `json:"id"`
	ProviderID        string            `json:"providerId"`
	ServiceType       string            `json:"serviceType"`
	ServiceDefinition ServiceDefinition `json:"serviceDefinition"`
}

type proposalsResponse struct {
	Proposals []Proposal `json:"proposals"`
}

type ConnectionStatusResponse struct {
	Status    ConnectionStatus `json:"status"`
	SessionID string           `json:"sessionId,omitempty"`
}

type apiErrorResponse struct {
	Message string `json:"message"`
}

// Client talks to the client API over loopback HTTP.
type Client struct {
	httpClient *http.Client
	address    string
}

func New(address string, timeout time.Duration) *Client {
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		address:    strings.TrimRight(address, "/"),
	}
}

func (client *Client) Address() string {
	return client.address
}

func (client *Client) Healthcheck(ctx context.Context) (*HealthcheckResponse, error) {
	var result HealthcheckResponse
	if err := client.do(ctx, http.MethodGet, "/healthcheck", &result); err != nil {
		return nil, fmt.Errorf("healthcheck: %w", err)
	}
	return &result, nil
}

func (client *Client) FindProposals(ctx context.Context) ([]Proposal, error) {
	var result proposalsResponse
	if err := client.do(ctx, http.MethodGet, "/proposals", &result); err != nil {
		return nil, fmt.Errorf("proposals: %w", err)
	}
	return result.Proposals, nil
}

func (client *Client) ConnectionStatus(ctx context.Context) (*ConnectionStatusResponse, error) {
	var result ConnectionStatusResponse
	if err := client.do(ctx, http.MethodGet, "/connection", &result); err != nil {
		return nil, fmt.Errorf("connection status: %w", err)
	}
	return &result, nil
}

// ConnectionCancel tears down the active VPN connection. When there is none
// the API answers 409, surfaced as a conflict error.
func (client *Client) ConnectionCancel(ctx context.Context) error {
	if err := client.do(ctx, http.MethodDelete, "/connection", nil); err != nil {
		return fmt.Errorf("connection cancel: %w", err)
	}
	return nil
}

func (client *Client) do(ctx context.Context, method, path string, result interface{}) error {
	request, err := http.NewRequestWithContext(ctx, method, client.address+path, nil)
	if err != nil {
		return errors.NewInternalError("failed to build request", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelledError("request cancelled", err)
		}
		return errors.NewNetworkError("client API unreachable", err).WithContext("address", client.address)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return statusError(response)
	}

	if result == nil || response.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return errors.NewValidationError("failed to decode response", err)
	}
	return nil
}

func statusError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	message := strings.TrimSpace(string(body))
	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	text := fmt.Sprintf("HTTP %d: %s", response.StatusCode, message)
	var domainErr *errors.DomainError
	switch response.StatusCode {
	case http.StatusConflict:
		domainErr = errors.NewConflictError(text, nil)
	case http.StatusNotFound:
		domainErr = errors.NewNotFoundError(text, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		domainErr = errors.NewPermissionError(text, nil)
	default:
		domainErr = errors.NewNetworkError(text, nil)
	}
	return domainErr.WithContext("status", response.StatusCode)
}
