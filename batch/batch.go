// Package batch drives vcdleak.ParseFile over a set of files discovered by
// glob, sharing one VarDefSet across the whole run so cross-file variable
// declarations are validated consistently.
package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tofuleak/vcdleak"
)

var errNoMatch = errors.New("no files matched the glob pattern")

// Result is one file's outcome within a batch. Err is non-nil on a per-file
// failure; a failing file does not abort the rest of the batch.
type Result struct {
	Path      string
	Leakage   []int64
	Extracted [][]byte
	Err       error
}

var lg = logrus.New()

// SetLogger replaces the package-level logger used for batch lifecycle
// events (files discovered, per-file failures).
func SetLogger(l *logrus.Logger) {
	lg = l
}

// Run globs pattern, then parses every matched file against cfg. Results are
// returned in path-sorted order regardless of cfg.Parallelism. With
// cfg.Parallelism <= 1 (vcdleak.DefaultParallelism) files are parsed
// sequentially on the calling goroutine, matching the first-writer/later-
// validator ordering a single-threaded batch run would produce. With a
// larger parallelism, the first path is parsed on the calling goroutine and
// the remaining paths are dispatched across a bounded pool of worker
// goroutines reading from a shared work channel. ctx is checked once before
// each file starts (not mid-file, since a single file's parse has no
// suspension points); a canceled context stops launching new file parses and
// the error is returned as ctx.Err().
func Run(ctx context.Context, pattern string, cfg *vcdleak.Config) ([]Result, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, vcdleak.IOError{Path: pattern, Err: err}
	}
	if len(paths) == 0 {
		return nil, vcdleak.IOError{Path: pattern, Err: errNoMatch}
	}
	sort.Strings(paths)
	lg.WithField("count", len(paths)).Info("batch: files discovered")

	varDef := vcdleak.NewVarDefSet()
	results := make([]Result, len(paths))

	workers := cfg.Parallelism
	if workers <= 1 {
		for i, path := range paths {
			if err := ctx.Err(); err != nil {
				return results[:i], err
			}
			results[i] = parseOne(path, cfg, varDef)
		}
		return results, nil
	}

	// "First writer" status for VarDefSet is decided by emptiness at the
	// moment a file's header starts parsing, so the first file is parsed
	// alone before any worker starts: every later file then validates against
	// that file's complete set of declarations, as in a sequential run.
	if err := ctx.Err(); err != nil {
		return results[:0], err
	}
	results[0] = parseOne(paths[0], cfg, varDef)

	type job struct {
		index int
		path  string
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = parseOne(j.path, cfg, varDef)
			}
		}()
	}
dispatch:
	for i := 1; i < len(paths); i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- job{index: i, path: paths[i]}:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func parseOne(path string, cfg *vcdleak.Config, varDef *vcdleak.VarDefSet) Result {
	res, err := vcdleak.ParseFile(path, cfg, varDef)
	if err != nil {
		lg.WithError(err).WithField("path", path).Warn("batch: file failed")
		return Result{Path: path, Err: err}
	}
	return Result{Path: path, Leakage: res.Leakage, Extracted: res.Extracted}
}
