package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSweepRun(t *testing.T) {
	root := t.TempDir()

	policy, err := Derive(RunIdentity{RunName: "eager-snow-7", SweepID: "s1"}, root, "val_AUC_macro")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(root, "sweep-s1"), policy.Directory)
	require.Contains(t, policy.FilenameTemplate, "eager-snow-7")
	require.Contains(t, policy.FilenameTemplate, "val_AUC_macro")
	require.Equal(t, "max", policy.Mode)
	require.Equal(t, 1, policy.SaveTopK)
	require.DirExists(t, policy.Directory)
}

func TestDeriveStandaloneRun(t *testing.T) {
	root := t.TempDir()

	policy, err := Derive(RunIdentity{RunName: "foo", Timestamp: "20240101_000000"}, root, "val_f1_weighted")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(root, "run-20240101_000000-foo"), policy.Directory)
	require.Contains(t, policy.FilenameTemplate, "best_epoch{epoch}")
	require.Contains(t, policy.FilenameTemplate, "val_f1_weighted")
}

func TestDeriveIsIdempotent(t *testing.T) {
	root := t.TempDir()
	id := RunIdentity{RunName: "foo", SweepID: "s9"}

	_, err := Derive(id, root, "val_AUC_macro")
	require.NoError(t, err)

	// second derivation over an existing directory must not fail
	_, err = Derive(id, root, "val_AUC_macro")
	require.NoError(t, err)
}

func TestRenderFillsPlaceholders(t *testing.T) {
	policy := CheckpointPolicy{FilenameTemplate: "best_epoch{epoch}_val_AUC_macro{value}"}

	name := policy.Render(7, 0.912)
	require.Equal(t, "best_epoch07_val_AUC_macro0.91.ckpt", name)
}
