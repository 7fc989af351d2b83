package ruleupgrade

import (
	"context"
	"testing"

	"brokle/internal/core/domain/ruleupgrade"
)

type fakeArtifactStore struct {
	objects map[string][]byte
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: make(map[string][]byte)}
}

func (f *fakeArtifactStore) Upload(_ context.Context, key string, content []byte, _ string) error {
	f.objects[key] = content
	return nil
}

func (f *fakeArtifactStore) Download(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func TestS3Deployer_DeployThenRollbackRestoresPreviousOverlay(t *testing.T) {
	store := newFakeArtifactStore()
	d := NewS3Deployer(store, nil)

	firstVersion, err := d.Deploy(context.Background(), []ruleupgrade.GeneratedPatch{{PatchID: "p1", RuleID: "r1", Diff: "first"}})
	if err != nil {
		t.Fatalf("unexpected error deploying first version: %v", err)
	}

	if _, err := d.Deploy(context.Background(), []ruleupgrade.GeneratedPatch{{PatchID: "p2", RuleID: "r2", Diff: "second"}}); err != nil {
		t.Fatalf("unexpected error deploying second version: %v", err)
	}

	if got := string(store.objects[currentOverlayKey]); got == string(store.objects[versionedOverlayKey(firstVersion)]) {
		t.Fatalf("expected current overlay to reflect the second deploy, not the first")
	}

	if err := d.Rollback(context.Background(), firstVersion); err != nil {
		t.Fatalf("unexpected error rolling back: %v", err)
	}

	if string(store.objects[currentOverlayKey]) != string(store.objects[versionedOverlayKey(firstVersion)]) {
		t.Fatal("expected rollback to restore the first version's bytes as current")
	}
}
