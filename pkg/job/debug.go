package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"watch-harvest/pkg/extract"

	log "github.com/sirupsen/logrus"
)

// DebugSink writes per-product artifacts under <root>/<run id>/<page slug>.
// A nil sink disables capture.
type DebugSink struct {
	Root  string
	RunID string
}

func NewDebugSink(root, runID string) *DebugSink {
	return &DebugSink{Root: root, RunID: runID}
}

// Dump collects artifacts for one product page. All methods are safe on a
// nil Dump.
type Dump struct {
	dir      string
	mu       sync.Mutex
	logFile  *os.File
	captured bool
}

// PageDirName turns a product URL into a directory name.
func PageDirName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "page"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	name := extract.Slugify(strings.Join(parts, " "))
	if name == "" {
		return "page"
	}
	return name
}

func (s *DebugSink) For(rawURL string) *Dump {
	if s == nil || s.Root == "" {
		return nil
	}
	dir := filepath.Join(s.Root, s.RunID, PageDirName(rawURL))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warnf("failed to create debug dir %s: %v", dir, err)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "job.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warnf("failed to open debug log in %s: %v", dir, err)
		return nil
	}
	return &Dump{dir: dir, logFile: f}
}

func (d *Dump) Dir() string {
	if d == nil {
		return ""
	}
	return d.dir
}

func (d *Dump) Logf(format string, args ...any) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.logFile, "%s %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

// Capture saves the page HTML and a full screenshot once.
func (d *Dump) Capture(ctx context.Context, page ProductPage) {
	if d == nil || d.captured {
		return
	}
	d.captured = true
	if html, err := page.HTML(ctx); err != nil {
		d.Logf("html capture failed: %v", err)
	} else {
		d.write("page.html", []byte(html))
	}
	if shot, err := page.Screenshot(ctx); err != nil {
		d.Logf("screenshot failed: %v", err)
	} else {
		d.write("screenshot.png", shot)
	}
}

// Report dumps the extraction report and the ranked image candidates.
func (d *Dump) Report(r *extract.Report) {
	if d == nil || r == nil {
		return
	}
	d.writeJSON("report.json", r)
	d.writeJSON("candidates.json", r.RankedImages)
}

func (d *Dump) writeJSON(name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		d.Logf("failed to encode %s: %v", name, err)
		return
	}
	d.write(name, data)
}

func (d *Dump) write(name string, data []byte) {
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		d.Logf("failed to write %s: %v", name, err)
	}
}

func (d *Dump) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logFile.Close()
}
