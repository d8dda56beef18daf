package vcdleak

import "testing"

const sampleHeader = "$date today $end\n" +
	"$version vcdleak test $end\n" +
	"$timescale 1ns $end\n" +
	"$scope module top $end\n" +
	"$var wire 1 ! a $end\n" +
	"$scope module cpu $end\n" +
	"$var wire 4 # d $end\n" +
	"$upscope $end\n" +
	"$upscope $end\n" +
	"$enddefinitions $end\n"

func Test_headerParser_parse_noFilter(t *testing.T) {
	cursor := NewCursor([]byte(sampleHeader))
	vars := NewVariableState()
	varDef := NewVarDefSet()

	hp := newHeaderParser(cursor, vars, varDef, InspectionSpec{}, nil)
	if err := hp.parse(); err != nil {
		t.Fatal(err)
	}

	a := mustID(t, "!")
	d := mustID(t, "#")
	if !vars.Contains(a) {
		t.Error("expected identifier ! to be tracked with an empty inspection spec")
	}
	if !vars.Contains(d) {
		t.Error("expected identifier # to be tracked with an empty inspection spec")
	}
	if w := vars.Width(d); w != 4 {
		t.Errorf("Width(#) = %d, want 4", w)
	}
	if len(hp.scope) != 0 {
		t.Errorf("scope stack not empty after matching $upscope pairs: %v", hp.scope)
	}
}

func Test_headerParser_parse_withFilter(t *testing.T) {
	cursor := NewCursor([]byte(sampleHeader))
	vars := NewVariableState()
	varDef := NewVarDefSet()

	inspection := InspectionSpec{"top->cpu": {}}
	hp := newHeaderParser(cursor, vars, varDef, inspection, nil)
	if err := hp.parse(); err != nil {
		t.Fatal(err)
	}

	a := mustID(t, "!")
	d := mustID(t, "#")
	if vars.Contains(a) {
		t.Error("identifier ! is outside the inspection spec and should not be tracked")
	}
	if !vars.Contains(d) {
		t.Error("identifier # is under top->cpu and should be tracked")
	}
}

func Test_headerParser_parse_extractOnlyOutsideInspection(t *testing.T) {
	cursor := NewCursor([]byte(sampleHeader))
	vars := NewVariableState()
	varDef := NewVarDefSet()

	a := mustID(t, "!")
	extractIDs := map[IdentifierCode]struct{}{a: {}}
	inspection := InspectionSpec{"top->cpu": {}}
	hp := newHeaderParser(cursor, vars, varDef, inspection, extractIDs)
	if err := hp.parse(); err != nil {
		t.Fatal(err)
	}

	if !vars.Contains(a) {
		t.Error("identifier named by an extraction request must be tracked regardless of the inspection spec")
	}
	if _, ok := hp.extractOnly[a]; !ok {
		t.Error("identifier pulled in only for extraction should be recorded in extractOnly")
	}
}

func Test_headerParser_parse_crossFileConsistency(t *testing.T) {
	varDef := NewVarDefSet()

	first := newHeaderParser(NewCursor([]byte(sampleHeader)), NewVariableState(), varDef, InspectionSpec{}, nil)
	if err := first.parse(); err != nil {
		t.Fatal(err)
	}

	second := newHeaderParser(NewCursor([]byte(sampleHeader)), NewVariableState(), varDef, InspectionSpec{}, nil)
	if err := second.parse(); err != nil {
		t.Fatalf("identical second file should validate cleanly: %v", err)
	}

	conflicting := "$var wire 1 ! renamed $end\n$enddefinitions $end\n"
	third := newHeaderParser(NewCursor([]byte(conflicting)), NewVariableState(), varDef, InspectionSpec{}, nil)
	if err := third.parse(); !IsInconsistentVars(err) {
		t.Errorf("conflicting declaration should fail with InconsistentVarsError, got %v", err)
	}
}

func Test_headerParser_parse_malformedDirective(t *testing.T) {
	hp := newHeaderParser(NewCursor([]byte("$bogus $end\n")), NewVariableState(), NewVarDefSet(), InspectionSpec{}, nil)
	if err := hp.parse(); !IsMalformedTrace(err) {
		t.Errorf("unrecognized directive should fail with MalformedTraceError, got %v", err)
	}
}
