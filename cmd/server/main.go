// renditiond generates, resolves and reconciles media variants.
//
// Features:
// - Preset and custom variants on demand (single-flight per variant)
// - Group-bounded batch generation with per-item failure reports
// - Eager generation queue and scheduled orphan reconciliation
// - Local filesystem, S3 (aws-sdk-go-v2) and MinIO storage providers
// - PostgreSQL or in-memory catalog
// - Prometheus metrics & structured logging (zap)
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
