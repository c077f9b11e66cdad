package store

import "testing"

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.5, -1, 0})
	want := "[0.5,-1,0]"
	if got != want {
		t.Fatalf("vectorLiteral() = %q, want %q", got, want)
	}
}

func TestVectorLiteralEmpty(t *testing.T) {
	if got := vectorLiteral(nil); got != "[]" {
		t.Fatalf("vectorLiteral(nil) = %q, want %q", got, "[]")
	}
}
