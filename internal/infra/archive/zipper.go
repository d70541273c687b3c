package archive

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Every entry is stamped 1980-01-01 00:00 (MS-DOS format) so identical inputs
// give identical archives.
const (
	dosDate uint16 = 1<<5 | 1
	dosTime uint16 = 0
)

const zipVersion20 = 20

// ZipCreator writes boot animation archives. Every entry is STORED with its CRC
// and sizes in the local header and no data descriptor, which is what the
// boot animation player expects.
type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

func (z *ZipCreator) CreateArchive(ctx context.Context, root string, entries []string, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	for _, name := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := addStoredEntry(zipWriter, root, name); err != nil {
			return fmt.Errorf("add %s to zip: %w", name, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return zipFile.Close()
}

func addStoredEntry(zw *zip.Writer, root, name string) error {
	if err := validEntryName(name); err != nil {
		return err
	}

	file, err := os.Open(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	defer file.Close()

	crc := crc32.NewIEEE()
	size, err := io.Copy(crc, file)
	if err != nil {
		return err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	header := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CreatorVersion:     zipVersion20,
		ReaderVersion:      zipVersion20,
		ModifiedDate:       dosDate,
		ModifiedTime:       dosTime,
		CRC32:              crc.Sum32(),
		CompressedSize64:   uint64(size),
		UncompressedSize64: uint64(size),
	}
	header.SetMode(0644)

	writer, err := zw.CreateRaw(header)
	if err != nil {
		return err
	}

	n, err := io.Copy(writer, file)
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("file changed while archiving: read %d bytes, expected %d", n, size)
	}
	return nil
}

func validEntryName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("invalid entry name %q", name)
	}
	if path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
		return fmt.Errorf("invalid entry name %q", name)
	}
	return nil
}
