package vcdleak

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// ParseResult is the outcome of driving a single VCD file through the header
// parser and the value-change engine.
type ParseResult struct {
	Leakage   []int64
	Extracted [][]byte
}

// ParseFile memory-maps path read-only, runs the header phase to build the
// variable table (validating its declarations against varDef), then streams
// the value-change section through the leakage engine. varDef is shared
// across every file in a batch; pass a fresh NewVarDefSet() for a standalone
// single-file parse.
func ParseFile(path string, cfg *Config, varDef *VarDefSet) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, IOError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, IOError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return &ParseResult{Leakage: nil, Extracted: make([][]byte, len(cfg.Extraction))}, nil
	}

	image, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, IOError{Path: path, Err: err}
	}
	defer image.Unmap()

	cursor := NewCursor([]byte(image))
	vars := NewVariableState()

	extractIDs := make(map[IdentifierCode]struct{})
	for _, req := range cfg.Extraction {
		for _, id := range req.IDs {
			extractIDs[id] = struct{}{}
		}
	}

	hp := newHeaderParser(cursor, vars, varDef, cfg.Inspection, extractIDs)
	if err := hp.parse(); err != nil {
		_lg.WithError(err).WithField("path", path).Error("header parse failed")
		return nil, err
	}
	_lg.WithField("path", path).Debug("header phase complete")

	eng, err := newValueChangeEngine(cursor, vars, cfg, hp.extractOnly)
	if err != nil {
		return nil, err
	}
	leakage, extracted, err := eng.run()
	if err != nil {
		_lg.WithError(err).WithField("path", path).Error("value-change parse failed")
		return nil, err
	}

	return &ParseResult{Leakage: leakage, Extracted: extracted}, nil
}
