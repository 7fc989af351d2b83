package grading

import "context"

// ImagePreprocessor re-encodes one page image to the pipeline's uniform
// format. Implementations live outside the core (spec.md §1 "image
// preprocessing details" is out of scope); preprocess falls back to the
// original reference on a per-image failure rather than failing the stage.
type ImagePreprocessor interface {
	Normalize(ctx context.Context, img ImageRef) (ImageRef, error)
}

// PassthroughPreprocessor returns every image unchanged. Used when no real
// preprocessor is configured and in tests.
type PassthroughPreprocessor struct{}

func (PassthroughPreprocessor) Normalize(_ context.Context, img ImageRef) (ImageRef, error) {
	return img, nil
}
