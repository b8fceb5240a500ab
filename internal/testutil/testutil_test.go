package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRoot(t *testing.T) {
	root, err := ProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
	assert.Equal(t, filepath.Join(root, "testdata", "voc"), TestData(t, "voc"))
	assert.True(t, FileExists(TestData(t, "voc", "ceyro_sample.xml")))
}

func TestEnsureDir(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "test", "nested", "dir")

	require.NoError(t, EnsureDir(testDir))
	assert.True(t, FileExists(testDir))
	assert.False(t, FileExists(filepath.Join(testDir, "missing")))
}

func TestWriteVOC(t *testing.T) {
	dir := t.TempDir()
	path := WriteVOC(t, dir, "007.xml", Obj("TLS-R", 1, 2, 3, 4))

	content := ReadFile(t, path)
	assert.Contains(t, content, "<filename>007.jpg</filename>")
	assert.Contains(t, content, "<name>TLS-R</name>")
	assert.Contains(t, content, "<xmin>1</xmin>")
	assert.Contains(t, content, "<ymax>4</ymax>")
}

func TestWriteScenario(t *testing.T) {
	s, err := ScenarioByName("mixed_images")
	require.NoError(t, err)

	gtDir, predDir := WriteScenario(t, s)
	for _, img := range s.Images {
		assert.True(t, FileExists(filepath.Join(gtDir, img.File)))
		assert.True(t, FileExists(filepath.Join(predDir, img.File)))
	}

	_, err = ScenarioByName("nope")
	assert.Error(t, err)
}
