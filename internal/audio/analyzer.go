package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultBlockSize is the number of samples per analysed block.
	// Must be a power of two.
	DefaultBlockSize = 1024
	// DefaultBinCount is the number of low-frequency bins surfaced for display.
	DefaultBinCount = 35
	// DefaultMaxMagnitude is the peak display magnitude frames are clamped to.
	DefaultMaxMagnitude = 32.0
)

// ErrTransformSetup is returned when the spectral transform cannot be built.
var ErrTransformSetup = errors.New("spectral transform setup failed")

// Analyzer turns a fixed-size block of real samples into the magnitudes of the
// lowest DFT bins. It keeps no state between calls apart from the cached FFT
// plan and scratch buffers, which never affect the result.
type Analyzer struct {
	mu sync.Mutex

	fft       *fourier.FFT
	blockSize int
	bins      int

	// scratch, reused across calls
	input  []float64
	coeffs []complex128
}

// NewAnalyzer builds an analyzer for blocks of blockSize samples producing
// bins magnitudes. blockSize must be a power of two and bins must fit inside
// the blockSize/2+1 unique bins of a real transform.
func NewAnalyzer(blockSize, bins int) (a *Analyzer, err error) {
	if blockSize < 2 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("%w: block size %d is not a power of two", ErrTransformSetup, blockSize)
	}
	if bins < 1 || bins > blockSize/2+1 {
		return nil, fmt.Errorf("%w: %d bins out of range for block size %d", ErrTransformSetup, bins, blockSize)
	}

	// gonum panics on allocation failures inside the plan constructor
	defer func() {
		if r := recover(); r != nil {
			a = nil
			err = fmt.Errorf("%w: %v", ErrTransformSetup, r)
		}
	}()

	return &Analyzer{
		fft:       fourier.NewFFT(blockSize),
		blockSize: blockSize,
		bins:      bins,
		input:     make([]float64, blockSize),
		coeffs:    make([]complex128, blockSize/2+1),
	}, nil
}

// BlockSize returns the number of input samples per block.
func (a *Analyzer) BlockSize() int {
	return a.blockSize
}

// Bins returns the number of output magnitudes.
func (a *Analyzer) Bins() int {
	return a.bins
}

// Analyze returns |X[k]| for k in [0, Bins()), where X is the unnormalized
// forward DFT of block. Short blocks are zero-padded and long ones truncated
// to BlockSize().
func (a *Analyzer) Analyze(block []float64) []float64 {
	out := make([]float64, a.bins)
	a.AnalyzeInto(out, block)
	return out
}

// AnalyzeInto is Analyze writing into dst, which must hold Bins() values.
func (a *Analyzer) AnalyzeInto(dst, block []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := copy(a.input, block)
	for i := n; i < a.blockSize; i++ {
		a.input[i] = 0
	}

	coeffs := a.fft.Coefficients(a.coeffs, a.input)
	for k := 0; k < a.bins && k < len(dst); k++ {
		re, im := real(coeffs[k]), imag(coeffs[k])
		dst[k] = math.Sqrt(re*re + im*im)
	}
}
