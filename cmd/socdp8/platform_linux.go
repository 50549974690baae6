//go:build linux

package main

import (
	"gopkg.in/urfave/cli.v2"

	"socdp8.com/hal"
	"socdp8.com/hal/sim"
	"socdp8.com/hal/uio"
)

func openHAL(ctx *cli.Context) (hal.HAL, error) {
	if ctx.Bool("sim") {
		return sim.New(), nil
	}
	return uio.Open(ctx.String("core"), ctx.String("io"), ctx.String("media"))
}
