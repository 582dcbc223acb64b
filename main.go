// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/beevik/go8086/asm"
	"github.com/beevik/go8086/host"
	"github.com/beevik/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "go8086 [script ...]",
	Short: "An 8086 assembler, emulator and debugger",
	Long: `Go8086 runs an interactive host for an emulated 8086 with 64K of
memory. Command scripts named on the command line run before the
interactive session starts.`,
	Run: func(cmd *cobra.Command, args []string) {
		runHost(args)
	},
}

var verbose bool

var assembleCmd = &cobra.Command{
	Use:   "assemble sourceFile",
	Short: "Assemble a file into a binary and a source map",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var options asm.Option
		if verbose {
			options |= asm.Verbose
		}
		if err := asm.AssembleFile(args[0], options, os.Stdout); err != nil {
			if _, ok := err.(asm.Errors); !ok {
				exitOnError(err)
			}
			os.Exit(1)
		}
	},
}

var steps int

var runCmd = &cobra.Command{
	Use:   "run programFile",
	Short: "Assemble or load a program and run it",
	Long: `Run loads a program and executes it until it halts or terminates
through DOS. Assembly source files are assembled in memory. The exit
code of the program becomes the exit code of go8086.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h := host.New()
		if err := h.Exec(os.Stdout, args[0], steps); err != nil {
			if _, ok := err.(asm.Errors); !ok {
				exitOnError(err)
			}
			os.Exit(1)
		}
		if code, ok := h.ExitCode(); ok {
			os.Exit(code)
		}
	},
}

func init() {
	assembleCmd.Flags().BoolVar(&verbose, "verbose", false, "display a listing of the generated code")
	runCmd.Flags().IntVarP(&steps, "steps", "n", 1000000, "maximum instructions to execute, 0 for no limit")

	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHost(scripts []string) {
	h := host.New()

	// Run commands contained in command-line files.
	for _, filename := range scripts {
		file, err := os.Open(filename)
		if err != nil {
			exitOnError(err)
		}
		h.RunCommands(file, os.Stdout, false)
		file.Close()
	}

	// Break on Ctrl-C.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go handleInterrupt(h, c)

	// Run commands interactively.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	h.RunCommands(os.Stdin, os.Stdout, interactive)
}

func handleInterrupt(h *host.Host, c chan os.Signal) {
	for {
		<-c
		h.Break()
	}
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
