package errorset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		sets []ErrorSet
		want ErrorSet
	}{
		{
			name: "All Empty",
			sets: []ErrorSet{nil, {}, nil},
			want: nil,
		},
		{
			name: "Single Failure",
			sets: []ErrorSet{nil, New("boom"), nil},
			want: New("boom"),
		},
		{
			name: "Order Preserved",
			sets: []ErrorSet{New("first"), New("second"), New("third")},
			want: New("first", "second", "third"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.sets...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Combine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorSet_AsError(t *testing.T) {
	if err := New().AsError(); err != nil {
		t.Errorf("empty set should be nil error, got %v", err)
	}

	err := New("a", "b").AsError()
	if err == nil {
		t.Fatal("non-empty set should be an error")
	}
	if got, want := err.Error(), "a; b"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorSet_WithDoesNotMutate(t *testing.T) {
	base := New("base")
	_ = base.With(New("extra"))

	if diff := cmp.Diff(New("base"), base); diff != "" {
		t.Errorf("receiver mutated (-want +got):\n%s", diff)
	}
}
