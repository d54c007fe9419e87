package smb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/storage/storagetest"
)

func TestSMBBackendContract(t *testing.T) {
	b, err := New(Config{Server: "//nas/media", MountPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "smb", b.Type())
	assert.Equal(t, "//nas/media", b.Server())
	assert.False(t, b.URLsExpire())

	storagetest.Run(t, b, "smb")
}

func TestNewRequiresExistingMount(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{MountPath: filepath.Join(t.TempDir(), "not-mounted")})
	assert.Error(t, err)
}
