package permission

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// DenyMarker is the file name that, when present in the data directory,
// marks notifications as denied. Removing it re-grants permission on the
// next foreground re-check.
const DenyMarker = "notifications.denied"

// FileProber reads the grant state from a marker file. It is the host-side
// stand-in for the OS permission dialog: an operator (or another process)
// flips the state by creating or removing the marker.
type FileProber struct {
	homeDir string
	logger  *slog.Logger
}

func NewFileProber(homeDir string, logger *slog.Logger) *FileProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProber{homeDir: homeDir, logger: logger}
}

func (p *FileProber) markerPath() string {
	return filepath.Join(p.homeDir, DenyMarker)
}

func (p *FileProber) Check(context.Context) (bool, error) {
	_, err := os.Stat(p.markerPath())
	if err == nil {
		return false, nil
	}
	if os.IsNotExist(err) {
		return true, nil
	}
	return false, err
}

// Request cannot show a dialog; it points the operator at the marker file
// and reports the unchanged state.
func (p *FileProber) Request(ctx context.Context) (bool, error) {
	granted, err := p.Check(ctx)
	if err != nil {
		return false, err
	}
	if !granted {
		p.logger.Info("notifications denied; remove marker to grant", "path", p.markerPath())
	}
	return granted, nil
}
