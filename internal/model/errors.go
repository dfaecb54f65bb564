package model

import "errors"

// Every failure of the pipeline wraps exactly one of these.
var (
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrMalformedLinkPath  = errors.New("malformed link path")
	ErrGenerationFailure  = errors.New("binding generation failed")
	ErrArtifactWrite      = errors.New("writing generated artifact failed")
)
