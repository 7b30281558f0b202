package imaging

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

const (
	// maxCompressAttempts bounds the quality/scale search.
	maxCompressAttempts = 10
	// decayFactor is applied to quality first, then scale, per attempt.
	decayFactor = 0.85
	// qualityFloorThreshold: while quality is above this, only quality decays.
	qualityFloorThreshold = 0.3
	// qualityFloor is the absolute minimum quality.
	qualityFloor = 0.2
	// scaleFloor is the absolute minimum scale.
	scaleFloor = 0.3
)

// CompressOptions tunes one compression run. Zero values fall back to
// scale 1.0, quality 0.8 and jpeg output. MaxSizeBytes == 0 disables the
// budget search and performs a single encode pass.
type CompressOptions struct {
	Scale        float64 `json:"scale"`
	Quality      float64 `json:"quality"`
	Format       string  `json:"format"`
	MaxSizeBytes int     `json:"max_size_bytes"`
}

// CompressResult is the terminal capture artifact: an encoded payload plus
// its MIME type. SizeBytes is measured on the base64 payload segment, an
// approximation of the wire byte size.
type CompressResult struct {
	Payload   string  `json:"payload"`
	MimeType  string  `json:"mime_type"`
	SizeBytes int     `json:"size_bytes"`
	Attempts  int     `json:"attempts"`
	Quality   float64 `json:"quality"`
	Scale     float64 `json:"scale"`
}

// searchState tracks the bounded quality/scale search for one run.
type searchState struct {
	quality float64
	scale   float64
	attempt int
}

// advance applies the tie-break policy: quality decays while it is above the
// floor threshold; scale is only touched once quality has reached it. Both
// knobs clamp at their absolute floors.
func (s searchState) advance() searchState {
	next := s
	next.attempt++
	if s.quality > qualityFloorThreshold {
		next.quality = s.quality * decayFactor
		if next.quality < qualityFloor {
			next.quality = qualityFloor
		}
		return next
	}
	next.scale = s.scale * decayFactor
	if next.scale < scaleFloor {
		next.scale = scaleFloor
	}
	return next
}

// Compress re-encodes payload at the requested scale and quality. With a size
// budget it repeats the encode pass, lowering quality then scale, until the
// output fits, both knobs are floored, or the attempt cap is hit. The last
// result is returned even when it is still over budget; that is not an error.
func Compress(payload string, opts CompressOptions) (*CompressResult, error) {
	src, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}

	if opts.Scale <= 0 {
		opts.Scale = 1.0
	}
	if opts.Quality <= 0 {
		opts.Quality = 0.8
	}
	format := opts.Format
	if format != MimePNG {
		format = MimeJPEG
	}

	state := searchState{quality: opts.Quality, scale: opts.Scale, attempt: 1}
	for {
		b64, mime, err := encodeScaled(src, format, state.scale, state.quality)
		if err != nil {
			return nil, err
		}
		result := &CompressResult{
			Payload:   DataURL(mime, b64),
			MimeType:  mime,
			SizeBytes: len(b64),
			Attempts:  state.attempt,
			Quality:   state.quality,
			Scale:     state.scale,
		}
		if opts.MaxSizeBytes <= 0 || result.SizeBytes <= opts.MaxSizeBytes {
			return result, nil
		}
		if state.attempt >= maxCompressAttempts {
			return result, nil
		}
		next := state.advance()
		if next.quality == state.quality && next.scale == state.scale {
			// Both floors reached; further attempts cannot change the output.
			return result, nil
		}
		state = next
	}
}

func encodeScaled(src image.Image, format string, scale, quality float64) (string, string, error) {
	img := src
	if scale != 1.0 {
		bounds := src.Bounds()
		w := int(float64(bounds.Dx())*scale + 0.5)
		h := int(float64(bounds.Dy())*scale + 0.5)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, xdraw.Src, nil)
		img = scaled
	}
	return encodeRaster(img, format, quality)
}
