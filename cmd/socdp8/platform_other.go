//go:build !linux

package main

import (
	"errors"

	"gopkg.in/urfave/cli.v2"

	"socdp8.com/hal"
	"socdp8.com/hal/sim"
)

func openHAL(ctx *cli.Context) (hal.HAL, error) {
	if ctx.Bool("sim") {
		return sim.New(), nil
	}
	return nil, errors.New("fabric access requires linux; use --sim")
}
