package vcdleak

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// LeakageModel selects how the value-change engine turns bit toggles into a
// leakage sample.
type LeakageModel int

const (
	// HammingDistance accumulates the number of bits that toggled since the
	// leakage counter was last reset.
	HammingDistance LeakageModel = iota
	// HammingWeight accumulates the Hamming weight of the combined tracked
	// state (the counter is never reset between samples).
	HammingWeight
)

const (
	// DefaultParallelism reproduces strict sequential, single-writer-first
	// batch semantics with no locking overhead.
	DefaultParallelism = 1
)

// InspectionSpec is the set of scope paths and ancestor-module prefixes the
// header parser should track. An empty spec means "track everything".
type InspectionSpec map[string]struct{}

func (s InspectionSpec) contains(path string) bool {
	_, ok := s[path]
	return ok
}

// ExtractionRequest names a timestamp and an ordered list of identifiers
// whose combined bit-string should be snapshotted once that timestamp is
// reached. Index records the request's original insertion order, which is
// also the slot its result occupies in ExtractionResults: the engine sorts
// requests by Time before streaming, so Index is how the caller's original
// order survives that reordering.
type ExtractionRequest struct {
	Time  int64
	IDs   []IdentifierCode
	Index int
}

// Config is the result of NewEngineOptions: everything a single file's parse
// needs besides the file itself and the batch's shared VarDefSet.
// WithParallelism is the only method that changes it, in place.
type Config struct {
	Model       LeakageModel
	Align       bool
	Downsample  uint64
	Inspection  InspectionSpec
	Extraction  []ExtractionRequest
	Parallelism int
}

// NewEngineOptions builds a Config, mirroring the shape of a functional
// constructor: validate eagerly, load the optional spec files, and return the
// result. inspectionSpecPath and extractionSpecPath may be empty,
// meaning "no filter" and "nothing to extract" respectively.
func NewEngineOptions(hammingWeight bool, inspectionSpecPath string, align bool, downsample uint64, extractionSpecPath string) (*Config, error) {
	if downsample == 0 {
		return nil, InvalidConfigError{Detail: "downsample must be >= 1"}
	}

	model := HammingDistance
	if hammingWeight {
		model = HammingWeight
	}

	cfg := &Config{
		Model:       model,
		Align:       align,
		Downsample:  downsample,
		Inspection:  InspectionSpec{},
		Parallelism: DefaultParallelism,
	}

	if inspectionSpecPath != "" {
		spec, err := parseInspectionSpec(inspectionSpecPath)
		if err != nil {
			return nil, err
		}
		cfg.Inspection = spec
	}

	if extractionSpecPath != "" {
		reqs, err := parseExtractionSpec(extractionSpecPath)
		if err != nil {
			return nil, err
		}
		cfg.Extraction = reqs
	}

	return cfg, nil
}

// WithParallelism overrides the batch package's worker count. n <= 0 is
// treated as DefaultParallelism.
func (c *Config) WithParallelism(n int) *Config {
	if n <= 0 {
		n = DefaultParallelism
	}
	c.Parallelism = n
	return c
}

var quotedPathPattern = regexp.MustCompile(`"([^"]*)"`)

// parseInspectionSpec extracts every double-quoted substring of the file as
// one path entry; the separator within a path is the literal "->".
func parseInspectionSpec(path string) (InspectionSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, IOError{Path: path, Err: err}
	}
	spec := InspectionSpec{}
	for _, m := range quotedPathPattern.FindAllSubmatch(content, -1) {
		spec[string(m[1])] = struct{}{}
	}
	return spec, nil
}

// parseExtractionSpec reads one request per line: a timestamp (decimal, or
// with a 0x/0 base prefix as strconv.ParseUint base 0 accepts) followed by
// one or more whitespace-separated identifier codes. A line of
// only whitespace terminates parsing early; EOF also terminates it.
func parseExtractionSpec(path string) ([]ExtractionRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, IOError{Path: path, Err: err}
	}
	defer f.Close()

	var reqs []ExtractionRequest
	scanner := bufio.NewScanner(f)
	index := 0
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			break
		}

		t, err := strconv.ParseUint(fields[0], 0, 64)
		if err != nil {
			return nil, MalformedTraceError{Detail: "invalid extraction timestamp: " + fields[0]}
		}

		ids := make([]IdentifierCode, 0, len(fields)-1)
		for _, tok := range fields[1:] {
			id, err := EncodeIdentifier([]byte(tok), 0)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}

		reqs = append(reqs, ExtractionRequest{Time: int64(t), IDs: ids, Index: index})
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, IOError{Path: path, Err: err}
	}
	return reqs, nil
}
