package vcdleak

import "sort"

// valueChangeEngine streams the simulation section of a VCD file: it
// maintains per-signal bit state, accumulates a leakage counter under the
// configured model, emits one leakage sample per observed timestamp (with
// optional alignment/downsampling), and snapshots extraction requests as
// their target timestamps are crossed.
type valueChangeEngine struct {
	cursor *Cursor
	vars   *VariableState

	model      LeakageModel
	align      bool
	downsample uint64

	extractOnly map[IdentifierCode]struct{}
	requests    []ExtractionRequest
	results     [][]byte

	currentLeakage int64
	lastIndex      int64
	lastTime       int64
	leakage        []int64

	nextRequest int
}

func newValueChangeEngine(cursor *Cursor, vars *VariableState, cfg *Config, extractOnly map[IdentifierCode]struct{}) (*valueChangeEngine, error) {
	if cfg.Downsample == 0 {
		return nil, InvalidConfigError{Detail: "downsample must be >= 1"}
	}

	requests := make([]ExtractionRequest, len(cfg.Extraction))
	copy(requests, cfg.Extraction)
	for _, req := range requests {
		for _, id := range req.IDs {
			if !vars.Contains(id) {
				return nil, UnknownIdentifierError{Identifier: id.String()}
			}
		}
	}
	// Stable sort by Time so ties resolve in original insertion (Index)
	// order, resolving the source's unspecified same-timestamp drain order.
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Time < requests[j].Time
	})

	return &valueChangeEngine{
		cursor:      cursor,
		vars:        vars,
		model:       cfg.Model,
		align:       cfg.Align,
		downsample:  cfg.Downsample,
		extractOnly: extractOnly,
		requests:    requests,
		results:     make([][]byte, len(cfg.Extraction)),
		lastIndex:   -1,
		lastTime:    -1,
		leakage:     make([]int64, 0, 1024),
	}, nil
}

// run consumes simulation commands until EOF and returns the finalized
// leakage buffer.
func (e *valueChangeEngine) run() ([]int64, [][]byte, error) {
	for !e.cursor.AtEOF() {
		switch {
		case e.cursor.TryConsume("#"):
			if err := e.handleTimestamp(); err != nil {
				return nil, nil, err
			}
		case e.cursor.TryConsume("$dumpvars\n"), e.cursor.TryConsume("$end\n"):
			// Ignored.
		case e.cursor.TryConsume("$dumpall"):
			return nil, nil, UnsupportedError{Offset: e.cursor.Pos(), What: "$dumpall"}
		case e.cursor.TryConsume("$dumpoff"):
			return nil, nil, UnsupportedError{Offset: e.cursor.Pos(), What: "$dumpoff"}
		case e.cursor.TryConsume("$dumpon"):
			return nil, nil, UnsupportedError{Offset: e.cursor.Pos(), What: "$dumpon"}
		case e.cursor.TryConsume("$comment"):
			return nil, nil, UnsupportedError{Offset: e.cursor.Pos(), What: "$comment"}
		default:
			if err := e.handleValueChange(); err != nil {
				return nil, nil, err
			}
		}
	}

	e.drainExtractions(e.lastTime)
	if e.nextRequest != len(e.requests) {
		return nil, nil, MissingExtractionError{Remaining: len(e.requests) - e.nextRequest}
	}

	if !e.align {
		e.leakage = append(e.leakage, e.currentLeakage)
	}

	if len(e.leakage) >= 1 {
		e.leakage = e.leakage[1:]
	}
	if e.model == HammingDistance {
		if len(e.leakage) >= 1 {
			e.leakage = e.leakage[1:]
		}
	}

	return e.leakage, e.results, nil
}

func (e *valueChangeEngine) handleTimestamp() error {
	t, err := e.cursor.ParseUnsignedDecimal()
	if err != nil {
		return err
	}
	n, err := e.cursor.DistanceTo("\n")
	if err != nil {
		return err
	}
	e.cursor.Advance(n + 1)

	if e.align {
		newIndex := int64(t / e.downsample)
		if newIndex > e.lastIndex+1 {
			for i := int64(0); i < newIndex-e.lastIndex-1; i++ {
				e.leakage = append(e.leakage, e.currentLeakage)
			}
		}
		if newIndex != e.lastIndex {
			e.leakage = append(e.leakage, e.currentLeakage)
			if e.model == HammingDistance {
				e.currentLeakage = 0
			}
			e.lastIndex = newIndex
		}
	} else {
		e.leakage = append(e.leakage, e.currentLeakage)
		if e.model == HammingDistance {
			e.currentLeakage = 0
		}
	}

	e.lastTime = int64(t)
	e.drainExtractions(e.lastTime)
	return nil
}

// drainExtractions snapshots every pending request whose target time has
// been reached or passed, in the (time, original-index) order established by
// the stable sort in newValueChangeEngine.
func (e *valueChangeEngine) drainExtractions(upTo int64) {
	for e.nextRequest < len(e.requests) && e.requests[e.nextRequest].Time <= upTo {
		req := e.requests[e.nextRequest]
		e.results[req.Index] = e.vars.ReadBits(req.IDs)
		e.nextRequest++
	}
}

func (e *valueChangeEngine) handleValueChange() error {
	first := e.cursor.Byte()
	e.cursor.Advance(1)

	switch first {
	case '0', '1', 'x', 'X', 'z', 'Z':
		return e.handleScalar(first)
	case 'b', 'B':
		return e.handleVector()
	case 'r', 'R':
		return UnsupportedError{Offset: e.cursor.Pos() - 1, What: "real-valued (r/R) change"}
	default:
		return MalformedTraceError{Offset: e.cursor.Pos() - 1, Detail: "unrecognized value-change token"}
	}
}

func (e *valueChangeEngine) handleScalar(first byte) error {
	newBit := first == '1'

	n, err := e.cursor.DistanceTo("\n")
	if err != nil {
		return err
	}
	idStart := e.cursor.Pos()
	id, err := EncodeIdentifier(e.cursor.Data()[idStart:idStart+n], idStart)
	if err != nil {
		return err
	}
	e.cursor.Advance(n)

	if !e.vars.Contains(id) {
		e.cursor.Advance(1) // skip the newline
		return nil
	}

	if _, extractOnly := e.extractOnly[id]; !extractOnly {
		e.applyLeakage(e.vars.GetBit(id, 0), newBit)
	}
	e.vars.SetBit(id, 0, newBit)
	e.cursor.Advance(1) // skip the newline
	return nil
}

func (e *valueChangeEngine) handleVector() error {
	nBitsLen, err := e.cursor.DistanceTo(" ")
	if err != nil {
		return err
	}
	bitsStart := e.cursor.Pos()

	idStart := bitsStart + nBitsLen + 1
	lineLen, err := e.cursor.DistanceTo("\n")
	if err != nil {
		return err
	}
	idLen := lineLen - nBitsLen - 1
	id, err := EncodeIdentifier(e.cursor.Data()[idStart:idStart+idLen], idStart)
	if err != nil {
		return err
	}

	if !e.vars.Contains(id) {
		e.cursor.Seek(bitsStart)
		n, err := e.cursor.DistanceTo("\n")
		if err != nil {
			return err
		}
		e.cursor.Advance(n + 1)
		return nil
	}

	width := e.vars.Width(id)
	_, extractOnly := e.extractOnly[id]
	bits := e.cursor.Data()
	// The bits string is consumed left-to-right as i counts down from
	// width-1 to 0; once i drops below nBitsLen, the k-th character consumed
	// (k = 0, 1, ...) lands at bit index nBitsLen-1-k, so bit i reads
	// character index nBitsLen-1-i. Positions with i >= nBitsLen are
	// left-zero-padded (ljust), matching the b<bits> grammar's convention
	// that a short bit string supplies the low-order bits.
	for i := width - 1; i >= 0; i-- {
		var c byte = '0'
		if i < nBitsLen {
			c = bits[bitsStart+nBitsLen-1-i]
		}
		switch c {
		case '0', '1', 'x', 'X', 'u', 'U', 'z', 'Z':
		default:
			return MalformedTraceError{Offset: bitsStart, Detail: "invalid bit in vector value change"}
		}

		newBit := c == '1'
		if !extractOnly {
			e.applyLeakage(e.vars.GetBit(id, i), newBit)
		}
		e.vars.SetBit(id, i, newBit)
	}

	e.cursor.Seek(idStart + idLen + 1) // skip past identifier code and newline
	return nil
}

func (e *valueChangeEngine) applyLeakage(oldBit, newBit bool) {
	switch e.model {
	case HammingDistance:
		if oldBit != newBit {
			e.currentLeakage++
		}
	case HammingWeight:
		if oldBit != newBit {
			if newBit {
				e.currentLeakage++
			} else {
				e.currentLeakage--
			}
		}
	}
}
