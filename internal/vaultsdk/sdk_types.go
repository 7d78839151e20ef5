package vaultsdk

import (
	"fmt"
	"runtime"

	"github.com/openvault/vaultsync/internal/version"
)

const (
	HeaderUserAgent    = "User-Agent"
	HeaderVaultVersion = "X-Vault-Version"
)

var VaultSyncUserAgent = fmt.Sprintf("vaultsync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

const (
	v1Checksums = "/api/v1/vault/checksums"
	v1File      = "/api/v1/vault/file"
	v1Status    = "/api/v1/vault/status"
)

// ChecksumsResponse is the remote listing: relative path to content digest,
// plus the server-side entry count for integrity checking.
type ChecksumsResponse struct {
	Files map[string]string `json:"files"`
	Count int               `json:"count"`
}

// StatusResponse reports remote store availability.
type StatusResponse struct {
	Online  bool   `json:"online"`
	Version string `json:"version,omitempty"`
}
