package dnet4

import "github.com/soypat/dnet4/internal"

// Validator accumulates structural errors while decoding a frame. It is an
// alias of [internal.Validator] so codec code and the ethernet sub-package
// share one accumulator type without an import cycle through this package.
type Validator = internal.Validator
