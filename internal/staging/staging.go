package staging

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
)

var ErrNotPrepared = errors.New("staging tree not prepared")

const framePattern = "boot_*.png"

// FrameName is the archive entry name of the kept frame with the given index.
// Indexes wider than five digits widen the name rather than being truncated.
func FrameName(index int) string {
	return path.Join(entity.PartName, fmt.Sprintf("boot_%05d.png", index))
}

// Tree is the on-disk layout that gets archived: desc.txt next to part0/.
// Entries are recorded in write order, which is the archive order.
type Tree struct {
	root     string
	encoder  port.FrameEncoder
	prepared bool
	entries  []string
}

func New(root string, encoder port.FrameEncoder) *Tree {
	return &Tree{root: root, encoder: encoder}
}

func (t *Tree) Root() string {
	return t.root
}

// Prepare creates the part directory and clears the frames a previous run left
// in it, so the tree on disk always matches the archive. An existing directory
// is reused and files other than staged frames are left alone.
func (t *Tree) Prepare() error {
	partDir := filepath.Join(t.root, entity.PartName)
	if err := os.MkdirAll(partDir, 0755); err != nil {
		return fmt.Errorf("create part dir %s: %w", partDir, err)
	}

	stale, err := filepath.Glob(filepath.Join(partDir, framePattern))
	if err != nil {
		return fmt.Errorf("list stale frames: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale frame %s: %w", p, err)
		}
	}

	t.prepared = true
	t.entries = t.entries[:0]
	return nil
}

// WriteDescriptor must run before any frame is written so desc.txt leads the archive.
func (t *Tree) WriteDescriptor(d entity.Descriptor) error {
	if !t.prepared {
		return ErrNotPrepared
	}
	if len(t.entries) > 0 {
		return fmt.Errorf("descriptor must be written before frames, %d entries staged", len(t.entries))
	}

	data, err := d.MarshalText()
	if err != nil {
		return fmt.Errorf("render descriptor: %w", err)
	}
	p := filepath.Join(t.root, entity.DescriptorFile)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("write descriptor %s: %w", p, err)
	}
	t.entries = append(t.entries, entity.DescriptorFile)
	return nil
}

// WriteFrame encodes the frame as PNG and returns its entry name.
func (t *Tree) WriteFrame(f entity.Frame) (string, error) {
	if !t.prepared {
		return "", ErrNotPrepared
	}

	name := FrameName(f.Index)
	p := filepath.Join(t.root, filepath.FromSlash(name))
	if err := t.encoder.EncodeFrame(f.Image, p); err != nil {
		return "", fmt.Errorf("write frame %s: %w", name, err)
	}
	t.entries = append(t.entries, name)
	return name, nil
}

// Entries returns the staged entry names, descriptor first, frames in kept order.
func (t *Tree) Entries() []string {
	out := make([]string, len(t.entries))
	copy(out, t.entries)
	return out
}

// Frames counts the staged frame entries.
func (t *Tree) Frames() int {
	n := len(t.entries)
	if n > 0 && t.entries[0] == entity.DescriptorFile {
		n--
	}
	return n
}
