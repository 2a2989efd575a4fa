//go:build !linux
// +build !linux

package main

import (
	"errors"

	"github.com/oplab/daclab/i2c"
)

func newD2r2(busNo int) (i2c.Bus, error) {
	return nil, errors.New("the d2r2 transport is only available on linux")
}
