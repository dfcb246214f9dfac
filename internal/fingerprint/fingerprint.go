package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	"github.com/kozaktomas/photo-variants/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/mat"
)

// HashResult contains the computed perceptual hash for an image.
type HashResult struct {
	PHash     string `json:"phash"` // 64-bit perceptual hash as hex string
	PHashBits uint64 `json:"-"`     // Raw pHash for comparison
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// dctBasis is the 32x32 DCT-II basis matrix, C[u][x] = cos(pi*u*(2x+1)/2N).
var dctBasis = newDCTBasis(constants.HashSize)

// ComputeHashes decodes an image and computes its perceptual hash.
func ComputeHashes(imageData []byte) (*HashResult, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	pHash := PHash(img)
	bounds := img.Bounds()

	return &HashResult{
		PHash:     Hex(pHash),
		PHashBits: pHash,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// Hex formats a hash as 16 lowercase hex digits.
func Hex(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// Similar returns true if two hashes are within the given threshold.
// A threshold of 10 is typically used for near-duplicate detection.
func Similar(hash1, hash2 uint64, threshold int) bool {
	return HammingDistance(hash1, hash2) <= threshold
}

// PHash computes a 64-bit perceptual hash using DCT.
func PHash(img image.Image) uint64 {
	// 1. Convert to grayscale at full resolution
	gray := toGrayscale(img)

	// 2. Downscale to 32x32 with an anti-aliasing kernel
	small := resizeGray(gray, constants.HashSize, constants.HashSize)

	// 3. DCT-II along rows, then along columns
	dct := computeDCT(grayMatrix(small))

	// 4. Top-left 8x8 block, row-major, DC included
	lowFreq := make([]float64, 0, constants.HashLowFreq*constants.HashLowFreq)
	for u := range constants.HashLowFreq {
		for v := range constants.HashLowFreq {
			lowFreq = append(lowFreq, dct.At(u, v))
		}
	}

	// 5. Compute median of the 64 values
	median := computeMedian(lowFreq)

	// 6. First coefficient becomes the most significant bit
	var hash uint64
	for i, c := range lowFreq {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}

	return hash
}

// toGrayscale converts an image to 8-bit luma using ITU-R BT.601 weights.
func toGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray.Pix[(y-bounds.Min.Y)*gray.Stride+(x-bounds.Min.X)] = uint8(math.Round(luma))
		}
	}
	return gray
}

// resizeGray scales a grayscale image to the specified dimensions.
func resizeGray(img *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// grayMatrix returns the pixel values as a rows x cols matrix.
func grayMatrix(img *image.Gray) *mat.Dense {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]float64, w*h)
	for y := range h {
		for x := range w {
			data[y*w+x] = float64(img.Pix[y*img.Stride+x])
		}
	}
	return mat.NewDense(h, w, data)
}

func newDCTBasis(size int) *mat.Dense {
	basis := mat.NewDense(size, size, nil)
	for u := range size {
		for x := range size {
			basis.Set(u, x, math.Cos(math.Pi*float64(u)*(2*float64(x)+1)/(2*float64(size))))
		}
	}
	return basis
}

// computeDCT applies the separable 2-D DCT-II: rows first (X·Cᵀ), then
// columns (C·(X·Cᵀ)).
func computeDCT(pixels *mat.Dense) *mat.Dense {
	var rows mat.Dense
	rows.Mul(pixels, dctBasis.T())

	var out mat.Dense
	out.Mul(dctBasis, &rows)
	return &out
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
