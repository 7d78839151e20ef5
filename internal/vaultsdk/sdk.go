package vaultsdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
	"github.com/openvault/vaultsync/internal/version"
)

// VaultSDK is the client for the remote content store. It exposes the
// store as checksums/get/put/delete/status; transport and auth concerns
// stay inside this package. Retries are intentionally NOT configured on
// the HTTP client; the sync orchestrator owns retry semantics.
type VaultSDK struct {
	client  *req.Client
	baseURL string
}

// New creates a new VaultSDK client
func New(baseURL string) (*VaultSDK, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(VaultSyncUserAgent).
		SetCommonHeader(HeaderVaultVersion, version.Version).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &VaultSDK{
		client:  client,
		baseURL: baseURL,
	}, nil
}

// BaseURL returns the configured remote store URL.
func (s *VaultSDK) BaseURL() string {
	return s.baseURL
}

// Close releases idle connections.
func (s *VaultSDK) Close() {
	s.client.GetTransport().CloseIdleConnections()
}

// GetChecksums fetches the full remote listing as path -> digest. The
// server-provided count must match the listing size; a mismatch marks
// the listing as corrupt and fails the call.
func (s *VaultSDK) GetChecksums(ctx context.Context) (map[string]string, error) {
	var result ChecksumsResponse
	res, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		SetErrorResult(&APIError{}).
		Get(v1Checksums)

	if err := handleAPIError(res, err, "get checksums"); err != nil {
		return nil, err
	}

	if result.Files == nil {
		result.Files = map[string]string{}
	}
	if result.Count != len(result.Files) {
		return nil, fmt.Errorf("%w: count=%d files=%d", ErrChecksumCount, result.Count, len(result.Files))
	}
	return result.Files, nil
}

// GetFile downloads the raw content of one file.
func (s *VaultSDK) GetFile(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		Get(v1File)

	if err != nil {
		return nil, fmt.Errorf("http request error: get file %q: %w", path, err)
	}
	if res.GetStatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("get file %q: %w", path, ErrFileNotFound)
	}
	if err := handleAPIError(res, nil, fmt.Sprintf("get file %q", path)); err != nil {
		return nil, err
	}

	return res.ToBytes()
}

// PutFile uploads the raw content of one file, creating parents on the
// remote implicitly.
func (s *VaultSDK) PutFile(ctx context.Context, path string, body []byte) error {
	if path == "" {
		return ErrEmptyPath
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetContentType("application/octet-stream").
		SetBodyBytes(body).
		SetErrorResult(&APIError{}).
		Put(v1File)

	return handleAPIError(res, err, fmt.Sprintf("put file %q", path))
}

// DeleteFile removes one file from the remote store. Deletes are
// idempotent: 200/201/204/404 all count as success.
func (s *VaultSDK) DeleteFile(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	// No SetErrorResult here: a 404 must hit the idempotent-success
	// switch below, and decoding its (often empty) body would turn it
	// into a request error first.
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		Delete(v1File)

	if err != nil {
		return fmt.Errorf("http request error: delete file %q: %w", path, err)
	}

	switch res.GetStatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return handleAPIError(res, nil, fmt.Sprintf("delete file %q", path))
}

// GetStatus probes remote reachability. It returns nil when the store is
// online, ErrRemoteOffline when it answers but reports itself offline,
// and a transport error otherwise.
func (s *VaultSDK) GetStatus(ctx context.Context) error {
	var result StatusResponse
	res, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		SetErrorResult(&APIError{}).
		Get(v1Status)

	if err := handleAPIError(res, err, "get status"); err != nil {
		return err
	}
	if !result.Online {
		return ErrRemoteOffline
	}
	return nil
}
