package checksum

import (
	"strings"
	"testing"
)

func TestSumMatchesSumReader(t *testing.T) {
	data := "%PDF-1.7 fake document"
	want := Sum([]byte(data))
	got, err := SumReader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	if got != want {
		t.Errorf("SumReader = %q, want %q", got, want)
	}
	if len(want) != 64 {
		t.Errorf("digest length = %d, want 64", len(want))
	}
}
