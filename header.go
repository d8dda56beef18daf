package vcdleak

import "strings"

// headerParser walks the declaration section of a VCD file: $scope/$upscope
// nesting, $var declarations, and the $date/$version/$timescale/$comment
// directives that precede $enddefinitions.
type headerParser struct {
	cursor *Cursor
	vars   *VariableState
	varDef *VarDefSet

	inspection InspectionSpec
	// extractIDs is the set of identifiers named by any extraction request;
	// these must be tracked even if outside the inspection spec.
	extractIDs map[IdentifierCode]struct{}
	// extractOnly collects identifiers that were force-tracked purely for
	// extraction and must not contribute to leakage.
	extractOnly map[IdentifierCode]struct{}

	scope []string
}

func newHeaderParser(cursor *Cursor, vars *VariableState, varDef *VarDefSet, inspection InspectionSpec, extractIDs map[IdentifierCode]struct{}) *headerParser {
	return &headerParser{
		cursor:      cursor,
		vars:        vars,
		varDef:      varDef,
		inspection:  inspection,
		extractIDs:  extractIDs,
		extractOnly: make(map[IdentifierCode]struct{}),
	}
}

// currentScope renders the scope stack as a "->"-joined path.
func (h *headerParser) currentScope() string {
	return strings.Join(h.scope, "->")
}

// parse consumes declaration commands until $enddefinitions $end\n.
func (h *headerParser) parse() error {
	shouldFilter := len(h.inspection) > 0
	isFirstWriter := h.varDef.empty()

	for {
		switch {
		case h.cursor.TryConsume("$var "):
			if err := h.parseVar(shouldFilter, isFirstWriter); err != nil {
				return err
			}
		case h.cursor.TryConsume("$scope "):
			if err := h.parseScope(shouldFilter); err != nil {
				return err
			}
		case h.cursor.TryConsume("$upscope $end\n"):
			if len(h.scope) > 0 {
				h.scope = h.scope[:len(h.scope)-1]
			}
		case h.cursor.TryConsume("$enddefinitions $end\n"):
			return nil
		case h.cursor.TryConsume("$date"):
			if err := h.cursor.SkipPastEndMarker(); err != nil {
				return err
			}
		case h.cursor.TryConsume("$version"):
			if err := h.cursor.SkipPastEndMarker(); err != nil {
				return err
			}
		case h.cursor.TryConsume("$timescale"):
			if err := h.cursor.SkipPastEndMarker(); err != nil {
				return err
			}
		case h.cursor.TryConsume("$comment"):
			if err := h.cursor.SkipPastEndMarker(); err != nil {
				return err
			}
		case h.cursor.TryConsume("\n"):
			continue
		default:
			return MalformedTraceError{Offset: h.cursor.Pos(), Detail: "unrecognized declaration command"}
		}
	}
}

func (h *headerParser) parseScope(shouldFilter bool) error {
	// scope_type, discarded.
	if _, err := h.cursor.TakeUntil(" "); err != nil {
		return err
	}
	h.cursor.Advance(1)

	n, err := h.cursor.DistanceTo(" $end")
	if err != nil {
		return err
	}
	if shouldFilter {
		ident := string(h.cursor.Data()[h.cursor.Pos() : h.cursor.Pos()+n])
		h.scope = append(h.scope, ident)
	}
	h.cursor.Advance(n)
	return h.cursor.SkipPastEndMarker()
}

func (h *headerParser) parseVar(shouldFilter, isFirstWriter bool) error {
	declStart := h.cursor.Pos()

	// var_type, discarded.
	if _, err := h.cursor.TakeUntil(" "); err != nil {
		return err
	}
	h.cursor.Advance(1)

	size, err := h.cursor.ParseUnsignedDecimal()
	if err != nil {
		return err
	}
	h.cursor.Advance(1)

	idLen, err := h.cursor.DistanceTo(" ")
	if err != nil {
		return err
	}
	idStart := h.cursor.Pos()
	id, err := EncodeIdentifier(h.cursor.Data()[idStart:idStart+idLen], idStart)
	if err != nil {
		return err
	}
	h.cursor.Advance(idLen + 1)

	refLen, err := h.cursor.DistanceTo(" $end")
	if err != nil {
		return err
	}
	reference := string(h.cursor.Data()[h.cursor.Pos() : h.cursor.Pos()+refLen])

	if shouldFilter {
		scope := h.currentScope()
		fullPath := reference
		if scope != "" {
			fullPath = scope + "->" + reference
		}
		if h.inspection.contains(scope) || h.inspection.contains(fullPath) {
			h.vars.Insert(id, int(size))
		} else if _, want := h.extractIDs[id]; want {
			h.extractOnly[id] = struct{}{}
			h.vars.Insert(id, int(size))
		}
	} else {
		h.vars.Insert(id, int(size))
	}

	// Rewind to the declaration start to capture the full raw "$var ... $end"
	// substring for cross-file consistency checking, then resume past it.
	h.cursor.Seek(declStart)
	varDef, err := h.cursor.TakeUntil(" $end")
	if err != nil {
		return err
	}
	if !h.varDef.checkOrInsert(string(varDef), isFirstWriter) {
		return InconsistentVarsError{Offset: declStart, VarDef: string(varDef)}
	}
	return h.cursor.SkipPastEndMarker()
}
