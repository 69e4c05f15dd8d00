package audio

import (
	"errors"
	"math"
	"testing"
)

func TestNewAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
		bins      int
		wantErr   bool
	}{
		{"defaults", DefaultBlockSize, DefaultBinCount, false},
		{"all unique bins", 16, 9, false},
		{"not power of two", 1000, 35, true},
		{"too small", 1, 1, true},
		{"zero bins", 1024, 0, true},
		{"too many bins", 16, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAnalyzer(tt.blockSize, tt.bins)
			if tt.wantErr {
				if !errors.Is(err, ErrTransformSetup) {
					t.Errorf("Expected ErrTransformSetup, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if a.BlockSize() != tt.blockSize || a.Bins() != tt.bins {
				t.Errorf("Expected %d/%d, got %d/%d", tt.blockSize, tt.bins, a.BlockSize(), a.Bins())
			}
		})
	}
}

func TestAnalyzeZeroBlock(t *testing.T) {
	a, err := NewAnalyzer(DefaultBlockSize, DefaultBinCount)
	if err != nil {
		t.Fatal(err)
	}

	mags := a.Analyze(make([]float64, DefaultBlockSize))
	if len(mags) != DefaultBinCount {
		t.Fatalf("Expected %d bins, got %d", DefaultBinCount, len(mags))
	}
	for i, m := range mags {
		if math.Abs(m) > 1e-9 {
			t.Errorf("Bin %d: expected 0, got %v", i, m)
		}
	}
}

func TestAnalyzeSine(t *testing.T) {
	const n = 1024
	a, err := NewAnalyzer(n, DefaultBinCount)
	if err != nil {
		t.Fatal(err)
	}

	// A cosine that completes exactly 5 cycles in the block lands in bin 5
	// with magnitude n/2, since the transform is not normalized.
	block := make([]float64, n)
	for i := range block {
		block[i] = math.Cos(2 * math.Pi * 5 * float64(i) / n)
	}

	mags := a.Analyze(block)
	for k, m := range mags {
		if m < 0 {
			t.Errorf("Bin %d: negative magnitude %v", k, m)
		}
		want := 0.0
		if k == 5 {
			want = n / 2
		}
		if math.Abs(m-want) > 1e-6 {
			t.Errorf("Bin %d: expected %v, got %v", k, want, m)
		}
	}
}

func TestAnalyzeDC(t *testing.T) {
	a, err := NewAnalyzer(64, 4)
	if err != nil {
		t.Fatal(err)
	}

	block := make([]float64, 64)
	for i := range block {
		block[i] = 0.25
	}
	mags := a.Analyze(block)
	if math.Abs(mags[0]-16) > 1e-9 {
		t.Errorf("Expected DC magnitude 16, got %v", mags[0])
	}
}

func TestAnalyzeShortBlockIsZeroPadded(t *testing.T) {
	a, err := NewAnalyzer(64, 8)
	if err != nil {
		t.Fatal(err)
	}

	short := []float64{1, 0.5, -0.25, 0.75}
	padded := make([]float64, 64)
	copy(padded, short)

	// Run a different block in between to prove no state carries over
	a.Analyze([]float64{9, 9, 9, 9, 9, 9})

	got := a.Analyze(short)
	want := a.Analyze(padded)
	for k := range want {
		if math.Abs(got[k]-want[k]) > 1e-12 {
			t.Errorf("Bin %d: expected %v, got %v", k, want[k], got[k])
		}
	}
}

func TestAnalyzeRepeatable(t *testing.T) {
	a, err := NewAnalyzer(128, 16)
	if err != nil {
		t.Fatal(err)
	}

	block := make([]float64, 128)
	for i := range block {
		block[i] = math.Sin(float64(i) * 0.3)
	}

	first := a.Analyze(block)
	second := a.Analyze(block)
	for k := range first {
		if first[k] != second[k] {
			t.Errorf("Bin %d differs between calls: %v vs %v", k, first[k], second[k])
		}
	}
}

func TestNewFrameClamps(t *testing.T) {
	f := NewFrame(7, []float64{-1, 5, 40, math.NaN()}, 32, 0)

	want := []float64{0, 5, 32, 0}
	for i := range want {
		if f.Magnitudes[i] != want[i] {
			t.Errorf("Value %d: expected %v, got %v", i, want[i], f.Magnitudes[i])
		}
	}
	if f.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", f.Seq)
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in      string
		want    Style
		wantErr bool
	}{
		{"bars", StyleBars, false},
		{"centered-lines", StyleCenteredLines, false},
		{"centeredLines", StyleCenteredLines, false},
		{"zigzag", StyleBars, true},
	}
	for _, tt := range tests {
		got, err := ParseStyle(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStyle(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStyle(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
