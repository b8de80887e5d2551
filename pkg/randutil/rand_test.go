package randutil

import (
	"sort"
	"testing"
)

func TestShuffledKeepsInput(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := Shuffled(New(7), in)

	for i, v := range in {
		if v != i+1 {
			t.Fatalf("input modified: %v", in)
		}
	}
	sorted := append([]int(nil), out...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != in[i] {
			t.Fatalf("Shuffled() lost elements: %v", out)
		}
	}
}

func TestSameSeedSameOrder(t *testing.T) {
	in := []string{"a", "b", "c", "d", "e", "f"}
	a := Shuffled(New(42), in)
	b := Shuffled(New(42), in)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded shuffles differ: %v vs %v", a, b)
		}
	}
}
