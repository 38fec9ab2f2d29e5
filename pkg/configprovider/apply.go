package configprovider

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log/level"

	"github.com/yyuuttaaoo/loongcollector/pkg/configprovider/configserverpb"
)

// applyUpdate materializes the server's declared state onto disk, per
// spec.md §4.4's UpdateRemoteConfig. It runs under fsMu so that one apply
// call is atomic with respect to any concurrent read of p.versions (there
// is only ever one worker goroutine, but tests may call this directly).
//
// The version map is updated before the rename is attempted, matching the
// original agent's behavior; see DESIGN.md for the accompanying open
// question about crash-safety of that ordering.
func (p *Provider) applyUpdate(checkResults []configserverpb.ConfigCheckResult, details []configserverpb.ConfigDetail) {
	p.fsMu.Lock()
	defer p.fsMu.Unlock()

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.available = false
		level.Error(p.logger).Log(
			"component", "configprovider", "op", "apply",
			"msg", "failed to create dir for continuous pipeline configs, stop receiving config from server",
			"dir", p.dir, "err", err,
		)
		return
	}

	detailByName := make(map[string][]byte, len(details))
	for _, d := range details {
		detailByName[d.Name] = d.Detail
	}

	for _, cr := range checkResults {
		finalPath := filepath.Join(p.dir, cr.Name+".yaml")
		tmpPath := filepath.Join(p.dir, cr.Name+".yaml.new")

		switch cr.CheckStatus {
		case configserverpb.ConfigStatusDeleted:
			delete(p.versions, cr.Name)
			if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
				level.Warn(p.logger).Log("component", "configprovider", "op", "apply", "msg", "failed to remove config file", "path", finalPath, "err", err)
			}

		case configserverpb.ConfigStatusNew, configserverpb.ConfigStatusModified:
			p.versions[cr.Name] = cr.NewVersion
			if err := writeAndRename(tmpPath, finalPath, detailByName[cr.Name]); err != nil {
				level.Warn(p.logger).Log("component", "configprovider", "op", "apply", "msg", "failed to dump config file", "path", finalPath, "err", err)
				continue
			}

		default:
			// ConfigStatusUnchanged: no action.
		}
	}
}

// writeAndRename writes detail to tmpPath, fsyncs and closes it, then
// atomically renames it onto finalPath. On any failure it attempts to
// remove tmpPath before returning the error.
func writeAndRename(tmpPath, finalPath string, detail []byte) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmpPath, err)
	}

	if _, err := f.Write(detail); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, finalPath, err)
	}
	return nil
}
