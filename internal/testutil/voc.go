package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Object is one annotated box written into a VOC fixture.
type Object struct {
	Label string `json:"label"`
	XMin  int    `json:"xmin"`
	YMin  int    `json:"ymin"`
	XMax  int    `json:"xmax"`
	YMax  int    `json:"ymax"`
}

// Obj is shorthand for an Object literal.
func Obj(label string, xmin, ymin, xmax, ymax int) Object {
	return Object{Label: label, XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

// VOC renders objects as a minimal Pascal-VOC annotation document.
func VOC(filename string, objects ...Object) string {
	var b strings.Builder
	b.WriteString("<annotation>\n")
	fmt.Fprintf(&b, "  <filename>%s</filename>\n", filename)
	for _, o := range objects {
		b.WriteString("  <object>\n")
		fmt.Fprintf(&b, "    <name>%s</name>\n", o.Label)
		b.WriteString("    <bndbox>\n")
		fmt.Fprintf(&b, "      <xmin>%d</xmin>\n", o.XMin)
		fmt.Fprintf(&b, "      <ymin>%d</ymin>\n", o.YMin)
		fmt.Fprintf(&b, "      <xmax>%d</xmax>\n", o.XMax)
		fmt.Fprintf(&b, "      <ymax>%d</ymax>\n", o.YMax)
		b.WriteString("    </bndbox>\n")
		b.WriteString("  </object>\n")
	}
	b.WriteString("</annotation>\n")
	return b.String()
}

// WriteVOC writes a VOC fixture named name into dir and returns its path.
func WriteVOC(t *testing.T, dir, name string, objects ...Object) string {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(VOC(strings.TrimSuffix(name, ".xml")+".jpg", objects...)), 0o600)
	require.NoError(t, err, "Failed to write VOC fixture: %s", path)
	return path
}

// WriteFile writes raw content into dir/name and returns its path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// EvalDirs creates sibling gt/ and pred/ directories in a fresh temp dir.
func EvalDirs(t *testing.T) (gtDir, predDir string) {
	t.Helper()

	root := t.TempDir()
	gtDir = filepath.Join(root, "gt")
	predDir = filepath.Join(root, "pred")
	require.NoError(t, EnsureDir(gtDir))
	require.NoError(t, EnsureDir(predDir))
	return gtDir, predDir
}
