// Package journal keeps a CSV record of every command sent to the
// controller.
package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/config"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

const defaultMaxRows = 100_000

var csvHeader = []string{"timestamp", "code", "value", "result", "duration_ms", "error"}

// Journal appends command round trips to CSV files, starting a new file
// after MaxRows rows. It implements protocol.Observer.
type Journal struct {
	mu      sync.Mutex
	dir     string
	maxRows int
	enabled bool
	log     *zap.Logger
	create  func(path string) (io.WriteCloser, error)

	file   io.WriteCloser
	writer *csv.Writer
	rows   int
	seq    int
	path   string
}

// New creates a journal. No file is created until the first record.
func New(cfg config.JournalConfig, log *zap.Logger) *Journal {
	if cfg.Path == "" {
		cfg.Path = "/var/log/lumidox"
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{
		dir:     cfg.Path,
		maxRows: cfg.MaxRows,
		enabled: cfg.Enabled,
		log:     log.Named("journal"),
		create:  func(path string) (io.WriteCloser, error) { return os.Create(path) },
	}
}

// SetEnabled toggles journaling at runtime.
func (j *Journal) SetEnabled(on bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enabled = on
	if !on {
		j.closeFile()
	}
}

// IsEnabled returns whether journaling is active.
func (j *Journal) IsEnabled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enabled
}

// Path is the file currently written, empty before the first record.
func (j *Journal) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.path
}

// ObserveExchange writes one row. Write failures are logged, never
// returned: a full disk must not stop the controller.
func (j *Journal) ObserveExchange(e protocol.Exchange) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.enabled {
		return
	}
	if j.writer == nil || j.rows >= j.maxRows {
		if err := j.rotateFile(e.At); err != nil {
			j.log.Warn("rotate failed", zap.Error(err))
			return
		}
	}
	if err := j.writer.Write(buildRow(e)); err != nil {
		j.log.Warn("write failed", zap.Error(err))
		return
	}
	j.writer.Flush()
	j.rows++
}

// Close flushes and closes the current file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeFile()
}

func (j *Journal) rotateFile(now time.Time) error {
	j.closeFile()

	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", j.dir, err)
	}

	j.seq++
	filename := fmt.Sprintf("lumidox_%s_%03d.csv", now.Format("2006-01-02_150405"), j.seq)
	path := filepath.Join(j.dir, filename)

	f, err := j.create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	w.Write(csvHeader)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write header %s: %w", path, err)
	}
	j.file = f
	j.writer = w
	j.rows = 0
	j.path = path

	j.log.Info("opened", zap.String("path", path))
	return nil
}

func (j *Journal) closeFile() error {
	if j.writer != nil {
		j.writer.Flush()
		j.writer = nil
	}
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func buildRow(e protocol.Exchange) []string {
	row := make([]string, len(csvHeader))
	row[0] = e.At.Format(time.RFC3339Nano)
	row[1] = e.Code
	row[2] = strconv.Itoa(int(e.Value))
	if e.Err == nil {
		row[3] = strconv.Itoa(int(e.Result))
	} else {
		row[5] = e.Err.Error()
	}
	row[4] = strconv.FormatFloat(float64(e.Duration)/float64(time.Millisecond), 'f', 3, 64)
	return row
}
