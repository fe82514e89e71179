package internal

import "errors"

// Validator accumulates structural errors found while decoding a frame, so
// a caller can run every check before deciding whether to drop a packet
// instead of bailing out on the first problem found. Shared by the root
// codec package and its sub-packages (ethernet, etc.) to avoid an import
// cycle through the root package.
type Validator struct {
	allowMultiErrs bool
	accum          []error
}

// ResetErr clears accumulated errors for reuse across frames.
func (v *Validator) ResetErr() {
	v.accum = v.accum[:0]
}

// ErrPop returns the accumulated error, if any, and resets the validator
// so it is ready for the next frame.
func (v *Validator) ErrPop() error {
	err := v.err()
	v.ResetErr()
	return err
}

func (v *Validator) err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}

// AddError records a structural error found during validation. Unless
// allowMultiErrs is set, only the first error reported per ErrPop cycle is
// kept; later ones are dropped so the caller sees the root cause.
func (v *Validator) AddError(err error) {
	if len(v.accum) != 0 && !v.allowMultiErrs {
		return
	}
	v.accum = append(v.accum, err)
}
