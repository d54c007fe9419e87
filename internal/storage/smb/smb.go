// Package smb stores variants on an SMB/CIFS share mounted on the host
// (mount.cifs or fstab). I/O goes through the local provider at the mount
// point, sidecars included.
package smb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fruitsalade/renditions/internal/storage/local"
)

// Config holds SMB backend settings. Server is informational; all I/O uses
// MountPath.
type Config struct {
	Server    string `json:"server"`     // e.g. //nas/media
	MountPath string `json:"mount_path"` // where the share is mounted
	BaseURL   string `json:"base_url"`
}

// SMBBackend wraps a LocalBackend at the SMB mount point.
type SMBBackend struct {
	*local.LocalBackend
	server string
}

// New creates an SMB backend. The mount point must already exist so an
// unmounted share is not silently replaced by a local directory.
func New(cfg Config) (*SMBBackend, error) {
	if cfg.MountPath == "" {
		return nil, fmt.Errorf("mount_path is required")
	}
	info, err := os.Stat(cfg.MountPath)
	if err != nil {
		return nil, fmt.Errorf("smb mount %s: %w", cfg.MountPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("smb mount %s is not a directory", cfg.MountPath)
	}

	lb, err := local.New(local.Config{
		RootPath:   cfg.MountPath,
		CreateDirs: true,
		BaseURL:    cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("smb backend at %s: %w", cfg.MountPath, err)
	}

	return &SMBBackend{LocalBackend: lb, server: cfg.Server}, nil
}

// NewFromJSON creates an SMBBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*SMBBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse smb config: %w", err)
	}
	return New(cfg)
}

// Server returns the configured share name.
func (b *SMBBackend) Server() string { return b.server }

// Type returns "smb".
func (b *SMBBackend) Type() string { return "smb" }
