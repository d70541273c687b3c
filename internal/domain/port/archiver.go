package port

import "context"

// Archiver packages the named entries, relative to root and in the given order,
// into a single archive at outputPath.
type Archiver interface {
	CreateArchive(ctx context.Context, root string, entries []string, outputPath string) error
}
