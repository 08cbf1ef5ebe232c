package agent

import (
	"context"
	"time"
)

// ScannedFile is one local filesystem entry found by the Scanner.
type ScannedFile struct {
	Path         string
	Dir          string
	Size         int64
	ModifiedTime time.Time
	CreatedTime  *time.Time
}

// Scanner walks the device's media folders and reports what is there.
// The agent only consumes the tuples; how they are produced (watched
// directories, platform media store) is up to the host app.
type Scanner interface {
	Scan(ctx context.Context) ([]ScannedFile, error)
}

// ThumbGenerator produces a bounded-size encoded thumbnail for a source
// file and returns the path it was written to.
type ThumbGenerator interface {
	Generate(ctx context.Context, srcPath string) (string, error)
}
