package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNamed(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// zipMagic 标准 zip 本地文件头
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00, 0x00, 0x00}

// peMagic DOS/PE 头 "MZ"
var peMagic = []byte{0x4D, 0x5A, 0x90, 0x00, 0x03, 0x00, 0x00, 0x00}

func TestDocxAsZipIsCompatibleAlias(t *testing.T) {
	insp := NewTypeInspector()

	f, err := insp.Inspect(writeNamed(t, "report.docx", zipMagic))
	require.NoError(t, err)
	assert.False(t, f.Masquerade)
	assert.Equal(t, "zip", f.RealExt)
	assert.Equal(t, RiskSafe, f.Risk)
}

func TestExecutableMasqueradingAsImage(t *testing.T) {
	insp := NewTypeInspector()

	f, err := insp.Inspect(writeNamed(t, "vacation.jpg", peMagic))
	require.NoError(t, err)
	assert.True(t, f.Masquerade)
	assert.Equal(t, "exe", f.RealExt)
	assert.Equal(t, RiskHigh, f.Risk, "可执行文件伪装判高危")
}

func TestZipMasqueradingAsText(t *testing.T) {
	insp := NewTypeInspector()

	f, err := insp.Inspect(writeNamed(t, "notes.txt", zipMagic))
	require.NoError(t, err)
	assert.True(t, f.Masquerade)
	assert.Equal(t, RiskMedium, f.Risk)
}

func TestPlainTextIsSafe(t *testing.T) {
	insp := NewTypeInspector()

	// 纯文本没有魔数，默认信任
	f, err := insp.Inspect(writeNamed(t, "readme.pdf", []byte("just words here")))
	require.NoError(t, err)
	assert.False(t, f.Masquerade)
	assert.Equal(t, "unknown", f.RealExt)
}

func TestNoExtensionIsSafe(t *testing.T) {
	insp := NewTypeInspector()

	f, err := insp.Inspect(writeNamed(t, "LICENSE", zipMagic))
	require.NoError(t, err)
	assert.False(t, f.Masquerade)
}

func TestEmptyFileIsSafe(t *testing.T) {
	insp := NewTypeInspector()

	f, err := insp.Inspect(writeNamed(t, "empty.zip", nil))
	require.NoError(t, err)
	assert.False(t, f.Masquerade)
}

func TestMissingFileReturnsError(t *testing.T) {
	insp := NewTypeInspector()

	_, err := insp.Inspect(filepath.Join(t.TempDir(), "gone.zip"))
	assert.Error(t, err)
}
