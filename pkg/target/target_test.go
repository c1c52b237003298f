package target

import (
	"reflect"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	tgt := Default()
	if err := tgt.Validate(); err != nil {
		t.Fatalf("default target invalid: %v", err)
	}
	if got := tgt.Narrow.General(); len(got) != 6 {
		t.Errorf("narrow general pool = %v, want 6 registers", got)
	}
	if tgt.Class(0) != &tgt.Wide {
		t.Error("unknown class should map to the wide tables")
	}
}

func TestRegClassHelpers(t *testing.T) {
	rc := Default().Wide
	if reg, ok := rc.ParamReg(2); !ok || reg != "w2" {
		t.Errorf("ParamReg(2) = %q, %v", reg, ok)
	}
	if _, ok := rc.ParamReg(4); ok {
		t.Error("only four wide parameter registers")
	}
	for reg, want := range map[string]bool{"w0": true, "w6": true, "w8": true, "w9": false, "sp": false, "r0": false} {
		if rc.Owns(reg) != want {
			t.Errorf("Owns(%q) = %v, want %v", reg, !want, want)
		}
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Target)
		want   string
	}{
		{"same sp and fp", func(t *Target) { t.FP = t.SP }, "sp and fp"},
		{"negative frame", func(t *Target) { t.FrameLimit = -1 }, "negative"},
		{"static past 64K", func(t *Target) { t.StaticBase = 0xFFF0 }, "16-bit"},
		{"empty pool", func(t *Target) { t.Narrow.CallerSaved = nil; t.Narrow.CalleeSaved = nil }, "empty general pool"},
		{"reserved allocatable", func(t *Target) { t.Narrow.Reserved = append(t.Narrow.Reserved, "r4") }, "reserved and allocatable"},
		{"loop overlaps pool", func(t *Target) { t.Wide.Loop = []string{"w4"} }, "loop and general"},
		{"param not caller-saved", func(t *Target) { t.Narrow.Params = []string{"r4"} }, "not caller-saved"},
		{"scratch not reserved", func(t *Target) { t.Wide.Scratch = "w1" }, "scratch"},
		{"register in both classes", func(t *Target) { t.Wide.CalleeSaved = []string{"r5"} }, "listed twice"},
		{"sp allocatable", func(t *Target) { t.Wide.CalleeSaved = []string{"sp"}; t.Wide.Reserved = []string{"w9"} }, "allocatable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tgt := Default()
			tc.modify(tgt)
			err := tgt.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	tgt, err := LoadFile("../../testdata/targets/tiny.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tgt.Name != "r816-tiny" || tgt.FrameLimit != 4 || tgt.StaticBase != 0xF000 || tgt.StaticSize != 8 {
		t.Errorf("scalars not loaded: %+v", tgt)
	}
	if !reflect.DeepEqual(tgt.Narrow.General(), []string{"r0", "r4"}) {
		t.Errorf("narrow pool = %v", tgt.Narrow.General())
	}
	// Untouched settings keep their defaults.
	if tgt.Narrow.Return != "r0" || tgt.Narrow.Scratch != "r9" {
		t.Errorf("narrow return/scratch = %q/%q", tgt.Narrow.Return, tgt.Narrow.Scratch)
	}
	if !reflect.DeepEqual(tgt.Wide, Default().Wide) {
		t.Error("wide class should be unchanged")
	}
	if tgt.ConservativeThreshold != 20 {
		t.Errorf("threshold = %d", tgt.ConservativeThreshold)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	if _, err := Load([]byte("narrow: {params: [r5]}")); err == nil {
		t.Error("parameter register outside caller-saved must be rejected")
	}
	if _, err := Load([]byte("frame_limit: [")); err == nil {
		t.Error("malformed YAML must be rejected")
	}
	if _, err := LoadFile("does-not-exist.yaml"); err == nil {
		t.Error("missing file must be rejected")
	}
}
