package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/transcript"
)

const commandHelp = "/reset clears every panel, /export [file.md|file.html] saves a transcript, /quit exits"

const eventSource = "channel"

// resetLogs clears every panel and republishes the empty logs.
func resetLogs(d Deps) error {
	if err := d.Sessions.ResetLogs(); err != nil {
		return err
	}
	if d.Bus != nil {
		for _, snap := range d.Sessions.Snapshots() {
			d.Bus.Emit(bus.EventSessionSnapshot, eventSource, snap)
		}
	}
	logger.Info("panel logs reset")
	return nil
}

// exportTranscript writes the current panels to path. An empty path picks a
// timestamped Markdown file in d.ExportDir. A .html extension selects HTML.
func exportTranscript(d Deps, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		dir := d.ExportDir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, "transcript-"+time.Now().Format("20060102-150405")+".md")
	}

	snapshots := d.Sessions.Snapshots()
	var content string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		html, err := transcript.HTML(snapshots)
		if err != nil {
			return "", err
		}
		content = html
	default:
		content = transcript.Markdown(snapshots)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	logger.Info("transcript exported", "path", path, "panels", len(snapshots))
	return path, nil
}
