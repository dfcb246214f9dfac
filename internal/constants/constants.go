// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Job limit constants
const (
	// DefaultMaxPhotos is the maximum number of uploads accepted per job
	DefaultMaxPhotos = 50

	// DefaultMaxN is the maximum number of variants per job
	DefaultMaxN = 100

	// DefaultMaxM is the maximum number of photos per variant
	DefaultMaxM = 20

	// DefaultN is the variant count before the user picks one
	DefaultN = 10

	// DefaultM is the photos-per-variant count before the user picks one
	DefaultM = 5

	// MinDescriptionLength is the minimum accepted base description length in characters
	MinDescriptionLength = 40
)

// Duplicate detection constants
const (
	// DefaultDuplicateThreshold is the max Hamming distance between two pHashes
	// at which the later photo is treated as a near-duplicate
	DefaultDuplicateThreshold = 10

	// HashSize is the side of the grayscale square the pHash is computed from
	HashSize = 32

	// HashLowFreq is the side of the low-frequency DCT block that forms the hash
	HashLowFreq = 8
)

// Augmentation constants. Empirical values; keep them as they are.
const (
	// CropMin and CropMax bound the symmetric crop fraction per side
	CropMin = 0.01
	CropMax = 0.06

	// RotateMaxDegrees bounds the micro rotation in both directions
	RotateMaxDegrees = 1.5

	// EnhanceSpread bounds brightness, contrast and sharpness factors around 1.0
	EnhanceSpread = 0.05

	// NoiseStdDev is the standard deviation of the scalar brightness noise
	NoiseStdDev = 3.0

	// BlurRadius is the radius of the final low-pass blur
	BlurRadius = 0.3
)

// Watermark constants
const (
	// WatermarkWidthRatio is the overlay width relative to the base image width
	WatermarkWidthRatio = 0.14

	// DefaultWatermarkOpacity is the opacity percent used for fresh profiles
	DefaultWatermarkOpacity = 70

	// DefaultWatermarkMargin is the edge margin in pixels used for fresh profiles
	DefaultWatermarkMargin = 24

	// Opacity and margin bounds
	MinWatermarkOpacity = 10
	MaxWatermarkOpacity = 100
	MinWatermarkMargin  = 0
	MaxWatermarkMargin  = 64

	// OpacityStep and MarginStep are the increments used by the adjust controls
	OpacityStep = 10
	MarginStep  = 4

	// PreviewWidth and PreviewHeight size the blank canvas used when no photo is available
	PreviewWidth  = 800
	PreviewHeight = 600
)

// Encoding constants
const (
	// OutputJPEGQuality is used for persisted photos
	OutputJPEGQuality = 92

	// PreviewJPEGQuality is used for previews
	PreviewJPEGQuality = 85
)

// Progress constants (percent)
const (
	ProgressTextStart    = 0
	ProgressTextDone     = 10
	ProgressAugmentStart = 20
	ProgressAugmentEnd   = 90
	ProgressArchiveStart = 95
	ProgressDone         = 100
)

// Processing constants
const (
	// YieldEvery is the number of completed units after which the orchestrator yields
	YieldEvery = 5

	// ProgressSaveDivisor splits the unit total into at most this many persisted progress updates
	ProgressSaveDivisor = 20

	// TextGenAttempts is the number of text generation attempts before falling back
	TextGenAttempts = 2

	// TextMinWordDiff is the minimum word-set difference between two generated texts
	TextMinWordDiff = 3
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum multipart upload size in bytes (100MB)
	MaxUploadSize = 100 << 20
)

// Text provider names
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderRemote = "remote"
	ProviderStatic = "static"
)
