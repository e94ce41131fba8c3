package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/webp"
)

const (
	MiB = 1 << 20

	MaxAudioBytes = 8 * MiB
	MaxVideoBytes = 50 * MiB
	MaxImageBytes = 10 * MiB

	MinImageSide = 100
	MaxImageSide = 2048

	// AspectTolerance is the allowed absolute difference between a video's
	// width/height ratio and one of the supported ratios.
	AspectTolerance = 0.01
)

// Rejection codes, stable for metrics labels and errors.Is comparisons.
const (
	CodeDisallowedType = "disallowed_type"
	CodeAudioTooLarge  = "audio_too_large"
	CodeVideoTooLarge  = "video_too_large"
	CodeImageTooLarge  = "image_too_large"
	CodeImageTooSmall  = "image_below_min_resolution"
	CodeImageTooBig    = "image_above_max_resolution"
	CodeImageLoad      = "image_load_failed"
	CodeVideoFormat    = "unsupported_video_format"
	CodeVideoLoad      = "video_load_failed"
)

// User-facing rejection reasons.
const (
	ReasonDisallowedType = "disallowed file type."
	ReasonAudioTooLarge  = "audio size exceeds maximum (8 MB)"
	ReasonVideoTooLarge  = "video size exceeds maximum (50 MB)"
	ReasonImageTooLarge  = "image size exceeds maximum (10 MB)"
	ReasonImageTooSmall  = "image resolution is below minimum (100x100 px)"
	ReasonImageTooBig    = "image resolution exceeds maximum (2048 px)"
	ReasonImageLoad      = "failed to load image"
	ReasonVideoFormat    = "unsupported video format"
	ReasonVideoLoad      = "failed to load video"
)

// SupportedAspectRatios are the width/height ratios a video may have.
var SupportedAspectRatios = []float64{1.0, 4.0 / 3.0, 16.0 / 9.0, 16.0 / 10.0}

// RejectionError explains why an attachment was refused. Reason is meant to
// be shown to the user as is.
type RejectionError struct {
	Code   string
	Reason string
	Err    error // underlying decode error, if any
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media: %s: %v", e.Reason, e.Err)
	}
	return "media: " + e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Err }

// Is matches another RejectionError carrying the same code.
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Code == e.Code
}

func reject(code, reason string, err error) *RejectionError {
	return &RejectionError{Code: code, Reason: reason, Err: err}
}

// Sentinel rejections for errors.Is.
var (
	ErrDisallowedType = reject(CodeDisallowedType, ReasonDisallowedType, nil)
	ErrAudioTooLarge  = reject(CodeAudioTooLarge, ReasonAudioTooLarge, nil)
	ErrVideoTooLarge  = reject(CodeVideoTooLarge, ReasonVideoTooLarge, nil)
	ErrImageTooLarge  = reject(CodeImageTooLarge, ReasonImageTooLarge, nil)
	ErrImageTooSmall  = reject(CodeImageTooSmall, ReasonImageTooSmall, nil)
	ErrImageTooBig    = reject(CodeImageTooBig, ReasonImageTooBig, nil)
	ErrImageLoad      = reject(CodeImageLoad, ReasonImageLoad, nil)
	ErrVideoFormat    = reject(CodeVideoFormat, ReasonVideoFormat, nil)
	ErrVideoLoad      = reject(CodeVideoLoad, ReasonVideoLoad, nil)
)

// Reason extracts the user-facing reason from a validation error.
func Reason(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Dimensions is the pixel size of an image or a video track.
type Dimensions struct {
	Width  int
	Height int
}

// VideoProber reads the frame dimensions of a video attachment.
type VideoProber interface {
	ProbeVideo(ctx context.Context, a Attachment) (Dimensions, error)
}

// Validator applies the attachment policy. The zero value is not usable;
// construct one with NewValidator.
type Validator struct {
	video VideoProber
}

// NewValidator returns a Validator that probes videos with p. A nil prober
// selects ContainerProber, which reads MP4, WebM and AVI.
func NewValidator(p VideoProber) *Validator {
	if p == nil {
		p = ContainerProber{}
	}
	return &Validator{video: p}
}

// Validate checks an attachment and returns nil when it may be attached.
// Rules are applied in order and the first failure wins: type, declared
// size, then image resolution or video aspect ratio.
func (v *Validator) Validate(ctx context.Context, a Attachment) error {
	cat := CategoryOf(a.ContentType())
	if cat == CategoryUnknown {
		return ErrDisallowedType
	}

	if err := checkSize(cat, a.Size()); err != nil {
		return err
	}

	switch cat {
	case CategoryImage:
		return checkImage(a)
	case CategoryVideo:
		return v.checkVideo(ctx, a)
	}
	return nil
}

func checkSize(cat Category, size int64) error {
	switch cat {
	case CategoryAudio:
		if size > MaxAudioBytes {
			return ErrAudioTooLarge
		}
	case CategoryVideo:
		if size > MaxVideoBytes {
			return ErrVideoTooLarge
		}
	case CategoryImage:
		if size > MaxImageBytes {
			return ErrImageTooLarge
		}
	}
	return nil
}

func checkImage(a Attachment) error {
	r, err := a.Open()
	if err != nil {
		return reject(CodeImageLoad, ReasonImageLoad, err)
	}
	defer r.Close()

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return reject(CodeImageLoad, ReasonImageLoad, err)
	}
	return CheckResolution(Dimensions{Width: cfg.Width, Height: cfg.Height})
}

// CheckResolution enforces the closed interval [MinImageSide, MaxImageSide]
// on both sides of an image.
func CheckResolution(d Dimensions) error {
	if d.Width < MinImageSide || d.Height < MinImageSide {
		return ErrImageTooSmall
	}
	if d.Width > MaxImageSide || d.Height > MaxImageSide {
		return ErrImageTooBig
	}
	return nil
}

func (v *Validator) checkVideo(ctx context.Context, a Attachment) error {
	d, err := v.video.ProbeVideo(ctx, a)
	if errors.Is(err, ErrUnsupportedContainer) {
		return reject(CodeVideoFormat, ReasonVideoFormat, err)
	}
	if err != nil {
		return reject(CodeVideoLoad, ReasonVideoLoad, err)
	}
	if !AspectRatioAllowed(d) {
		return ErrVideoFormat
	}
	return nil
}

// AspectRatioAllowed reports whether width/height lies within
// AspectTolerance of a supported ratio.
func AspectRatioAllowed(d Dimensions) bool {
	if d.Width <= 0 || d.Height <= 0 {
		return false
	}
	ratio := float64(d.Width) / float64(d.Height)
	for _, want := range SupportedAspectRatios {
		if math.Abs(ratio-want) < AspectTolerance {
			return true
		}
	}
	return false
}
