// command socdp8 is the firmware core of the SoCDP8: it bridges the
// PDP-8/I synthesized in fabric to software peripheral emulations and
// runs the operator shell.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/tarm/serial"
	"gopkg.in/urfave/cli.v2"

	"socdp8.com/asr33"
	"socdp8.com/boot"
	"socdp8.com/core"
	"socdp8.com/hal"
	"socdp8.com/iocore"
	"socdp8.com/pr8"
	"socdp8.com/shell"
)

func main() {
	app := &cli.App{
		Name:  "socdp8",
		Usage: "firmware core for the SoCDP8 PDP-8/I",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "core",
				Usage: "UIO device of the core-memory block",
				Value: "/dev/uio0",
			},
			&cli.StringFlag{
				Name:  "io",
				Usage: "UIO device of the I/O controller",
				Value: "/dev/uio1",
			},
			&cli.StringFlag{
				Name:  "media",
				Usage: "root directory of the tape image store",
				Value: "/media",
			},
			&cli.StringFlag{
				Name:  "console",
				Usage: "serial device for the operator shell (default stdin/stdout)",
			},
			&cli.BoolFlag{
				Name:  "sim",
				Usage: "run against a simulated fabric",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Println("socdp8: starting")

	h, err := openHAL(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	console, err := openConsole(ctx.String("console"))
	if err != nil {
		return err
	}

	ctrl := iocore.New(h)
	defer ctrl.Close()

	tty, err := asr33.New(ctrl, console)
	if err != nil {
		return err
	}
	tape, err := pr8.New(ctrl, console)
	if err != nil {
		return err
	}

	sh := shell.New("SoCDP8> ")
	registerCommands(sh, console, h, tty, tape)

	log.Println("socdp8: ready")
	return sh.Run(console)
}

// console glues stdin and stdout into the one stream the shell and
// the devices write to.
type console struct {
	io.Reader
	io.Writer
}

func openConsole(dev string) (io.ReadWriter, error) {
	if dev == "" {
		return &console{os.Stdin, os.Stdout}, nil
	}
	port, err := serial.OpenPort(&serial.Config{Name: dev, Baud: 115200})
	if err != nil {
		return nil, fmt.Errorf("console %s: %w", dev, err)
	}
	return port, nil
}

func registerCommands(sh *shell.Shell, console io.Writer, h hal.HAL, tty *asr33.ASR33, tape *pr8.PR8) {
	sh.Register("rimloader", func(args []string) {
		boot.StoreRIMLoader(h)
	})

	sh.Register("ls", func(args []string) {
		files, err := h.ListFiles()
		if err != nil {
			fmt.Fprintf(console, "Couldn't list files: %v\n", err)
			return
		}
		for _, f := range files {
			fmt.Fprintln(console, f.Name)
		}
	})

	sh.Register("load", func(args []string) {
		if len(args) != 2 {
			fmt.Fprintln(console, "Usage: load <low | high> <path>")
			return
		}
		if args[0] != "low" && args[0] != "high" {
			fmt.Fprintln(console, "Usage: load <low | high> <path>")
			return
		}
		content, err := h.ReadFile(args[1])
		if err != nil {
			fmt.Fprintln(console, "Couldn't load file")
			return
		}
		if args[0] == "high" {
			tape.SetReaderInput(content)
			fmt.Fprintln(console, "Attached to PR8")
		} else {
			tty.SetReaderInput(content)
			fmt.Fprintln(console, "Attached to ASR33")
		}
	})

	sh.Register("input", func(args []string) {
		tty.SetStringInput(strings.Join(args, " ") + "\r\n")
	})

	sh.Register("clear", func(args []string) {
		if len(args) != 1 {
			fmt.Fprintln(console, "Usage: clear <low | high>")
			return
		}
		if args[0] != "low" && args[0] != "high" {
			fmt.Fprintln(console, "Usage: clear <low | high>")
			return
		}
		if args[0] == "high" {
			tape.Clear()
		} else {
			tty.Clear()
		}
	})

	sh.Register("dump", func(args []string) {
		if len(args) != 2 {
			fmt.Fprintln(console, "Usage: dump <start> <end>")
			return
		}
		start, err1 := strconv.ParseUint(args[0], 8, 16)
		end, err2 := strconv.ParseUint(args[1], 8, 16)
		if err1 != nil || err2 != nil {
			fmt.Fprintln(console, "Usage: dump <start> <end>")
			return
		}
		core.Dump(console, h, uint16(start), uint16(end))
	})

	sh.Register("state", func(args []string) {
		if len(args) != 2 {
			fmt.Fprintln(console, "Usage: state <load | save> <file>")
			return
		}
		switch args[0] {
		case "save":
			if err := h.SaveFile(args[1], core.Save(h)); err != nil {
				fmt.Fprintf(console, "Error: %v\n", err)
			}
		case "load":
			data, err := h.ReadFile(args[1])
			if err != nil {
				fmt.Fprintf(console, "Error: %v\n", err)
				return
			}
			core.Load(h, data)
		default:
			fmt.Fprintln(console, "Usage: state <load | save> <file>")
		}
	})
}
