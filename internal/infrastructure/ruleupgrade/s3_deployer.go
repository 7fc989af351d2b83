// Package ruleupgrade adapts blob storage into the rule-upgrade pipeline's
// Deployer collaborator and provides a no-op Monitor.
package ruleupgrade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"brokle/internal/core/domain/ruleupgrade"
)

// artifactWriter is the subset of storage.S3Client this package depends on;
// declared locally so this package doesn't import the grading domain just
// to reference grading.ExportWriter.
type artifactWriter interface {
	Upload(ctx context.Context, key string, content []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// S3Deployer "deploys" a patch set by writing it as the current rubric
// overlay object in blob storage and versioning it by upload timestamp;
// rollback re-uploads a previously captured version's bytes over the
// current-overlay key. There is no separate rules engine in this repo — the
// overlay object itself is what the grading pipeline would read at scoring
// time to apply mined-rule patches on top of the base rubric.
type S3Deployer struct {
	storage artifactWriter
	logger  *slog.Logger
}

func NewS3Deployer(storage artifactWriter, logger *slog.Logger) *S3Deployer {
	return &S3Deployer{storage: storage, logger: logger}
}

const currentOverlayKey = "rule-upgrades/current-overlay.json"

func versionedOverlayKey(version string) string {
	return fmt.Sprintf("rule-upgrades/versions/%s.json", version)
}

// Deploy writes patches to a version-stamped key and points the current
// overlay at it, returning the version identifier.
func (d *S3Deployer) Deploy(ctx context.Context, patches []ruleupgrade.GeneratedPatch) (string, error) {
	body, err := json.Marshal(patches)
	if err != nil {
		return "", fmt.Errorf("marshal patch set: %w", err)
	}
	version := time.Now().UTC().Format("20060102T150405.000000000Z")

	if err := d.storage.Upload(ctx, versionedOverlayKey(version), body, "application/json"); err != nil {
		return "", fmt.Errorf("upload versioned overlay: %w", err)
	}
	if err := d.storage.Upload(ctx, currentOverlayKey, body, "application/json"); err != nil {
		return "", fmt.Errorf("upload current overlay: %w", err)
	}
	if d.logger != nil {
		d.logger.Info("deployed rule-upgrade overlay", "version", version, "patches", len(patches))
	}
	return version, nil
}

// Rollback restores the current overlay to a previously deployed version's
// bytes.
func (d *S3Deployer) Rollback(ctx context.Context, toVersion string) error {
	if toVersion == "" {
		body, err := json.Marshal([]ruleupgrade.GeneratedPatch{})
		if err != nil {
			return err
		}
		return d.storage.Upload(ctx, currentOverlayKey, body, "application/json")
	}
	body, err := d.storage.Download(ctx, versionedOverlayKey(toVersion))
	if err != nil {
		return fmt.Errorf("download version %s: %w", toVersion, err)
	}
	if err := d.storage.Upload(ctx, currentOverlayKey, body, "application/json"); err != nil {
		return fmt.Errorf("restore current overlay to version %s: %w", toVersion, err)
	}
	if d.logger != nil {
		d.logger.Info("rolled back rule-upgrade overlay", "version", toVersion)
	}
	return nil
}
