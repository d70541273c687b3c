package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageTree(t *testing.T) (string, []string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "part0"), 0755))

	files := map[string]string{
		"desc.txt":             "320 480 30\r\np 1 0 part0\r\n",
		"part0/boot_00000.png": "frame zero",
		"part0/boot_00001.png": "frame one, a little longer",
		"part0/boot_00002.png": "",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte(body), 0644))
	}

	// Deliberately not in lexical order: the archive must follow this slice.
	return root, []string{"desc.txt", "part0/boot_00000.png", "part0/boot_00002.png", "part0/boot_00001.png"}
}

func TestCreateArchiveStoresEntriesInOrder(t *testing.T) {
	root, entries := stageTree(t)
	out := filepath.Join(t.TempDir(), "bootanimation.zip")

	require.NoError(t, NewZipCreator().CreateArchive(context.Background(), root, entries, out))

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, len(entries))
	for i, f := range r.File {
		assert.Equal(t, entries[i], f.Name)
		assert.Equal(t, zip.Store, f.Method, f.Name)
		assert.Zero(t, f.Flags&0x8, "%s must not use a data descriptor", f.Name)
		assert.Equal(t, f.CompressedSize64, f.UncompressedSize64)
		assert.Equal(t, 1980, f.Modified.Year())

		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)

		want, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Name)))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCreateArchiveLocalHeaderIsStored(t *testing.T) {
	root, entries := stageTree(t)
	out := filepath.Join(t.TempDir(), "bootanimation.zip")
	require.NoError(t, NewZipCreator().CreateArchive(context.Background(), root, entries[:1], out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(raw, []byte("PK\x03\x04")))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(raw[6:8]), "general purpose flags")
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(raw[8:10]), "compression method")
	nameLen := binary.LittleEndian.Uint16(raw[26:28])
	assert.Equal(t, "desc.txt", string(raw[30:30+nameLen]))
}

func TestCreateArchiveIsDeterministic(t *testing.T) {
	root, entries := stageTree(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "a.zip")
	second := filepath.Join(dir, "b.zip")

	z := NewZipCreator()
	require.NoError(t, z.CreateArchive(context.Background(), root, entries, first))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "desc.txt"), later, later))
	require.NoError(t, z.CreateArchive(context.Background(), root, entries, second))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCreateArchiveMissingEntry(t *testing.T) {
	root, _ := stageTree(t)
	out := filepath.Join(t.TempDir(), "bootanimation.zip")

	err := NewZipCreator().CreateArchive(context.Background(), root, []string{"desc.txt", "part0/boot_00009.png"}, out)
	assert.Error(t, err)
}

func TestCreateArchiveRejectsEscapingNames(t *testing.T) {
	root, _ := stageTree(t)
	out := filepath.Join(t.TempDir(), "bootanimation.zip")

	for _, name := range []string{"../desc.txt", "/etc/passwd", `part0\boot_00000.png`, "part0/../desc.txt", ""} {
		err := NewZipCreator().CreateArchive(context.Background(), root, []string{name}, out)
		assert.Error(t, err, name)
	}
}

func TestCreateArchiveCancelled(t *testing.T) {
	root, entries := stageTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewZipCreator().CreateArchive(ctx, root, entries, filepath.Join(t.TempDir(), "x.zip"))
	assert.ErrorIs(t, err, context.Canceled)
}
