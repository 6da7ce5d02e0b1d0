package pixbuf

import "errors"

var (
	// ErrPrecondition is returned when an operation's input violates its
	// contract: mismatched sizes, even convolution kernels, non-power-of-two
	// FFT input and so on. It is never retried.
	ErrPrecondition = errors.New("precondition violated")

	// ErrNonFinite is returned when a buffer contains NaN or ±Inf values.
	ErrNonFinite = errors.New("non-finite value in buffer")
)
