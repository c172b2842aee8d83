package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// LayoutOverflowError is the error returned when a requested size or alignment cannot be represented
// within the address space size domain
var LayoutOverflowError error = errors.New("size calculations overflowed")
