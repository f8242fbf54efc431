package nsf

import "errors"

// Every build or forward failure wraps exactly one of these kinds.
var (
	// ErrConfiguration reports inconsistent or missing architecture hyperparameters.
	ErrConfiguration = errors.New("nsf: configuration error")
	// ErrWeightShape reports a provider tensor that is missing or does not
	// match the shape implied by the configuration.
	ErrWeightShape = errors.New("nsf: weight shape error")
	// ErrInputShape reports a mel/F0 mismatch at call time. No output is produced.
	ErrInputShape = errors.New("nsf: input shape error")
	// ErrNumericDegeneracy reports a zero-norm direction vector during folding.
	ErrNumericDegeneracy = errors.New("nsf: numeric degeneracy")
)
