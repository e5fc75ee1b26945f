package passage

import (
	"math"
	"testing"
)

func TestDraft_Validate(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		dim     int
		wantErr bool
	}{
		{"ok", Draft{Content: "breakfast 7-10", Embedding: []float32{1, 0, 0}}, 3, false},
		{"blank content", Draft{Content: "  ", Embedding: []float32{1, 0, 0}}, 3, true},
		{"wrong dim", Draft{Content: "x", Embedding: []float32{1, 0}}, 3, true},
		{"nan", Draft{Content: "x", Embedding: []float32{float32(math.NaN()), 0, 0}}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate(tt.dim)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReconstruct(t *testing.T) {
	p := Reconstruct(4, 2, "pool opens at 8", []float32{0.1})
	if p.ID() != 4 || p.SourceFileID() != 2 || p.Content() != "pool opens at 8" || len(p.Embedding()) != 1 {
		t.Errorf("unexpected passage: %+v", p)
	}
}
