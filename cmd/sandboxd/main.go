// Command sandboxd is the demonstration host: it drives a Manager
// against a real on-disk directory tree over HTTP, standing in for the
// editor UI and virtual FS backend so the engine can be exercised
// outside of unit tests.
//
// CLI parsing uses a single options struct with one field per
// subcommand, dispatched through a name->func table built from
// flags.Parser.Active.
package main

import (
	"fmt"
	"os"

	flags "github.com/thought-machine/go-flags"
)

type serveCmd struct {
	Root      string   `short:"r" long:"root" description:"directory to serve as the sandbox's source tree" default:"."`
	Entry     string   `short:"e" long:"entry" description:"entry module path, relative to root" default:"/index.js"`
	Port      int      `short:"p" long:"port" description:"HTTP port to listen on" default:"4300"`
	Proxy     []string `long:"proxy" description:"prefix=target reverse proxy rule, may be repeated"`
	Define    []string `long:"define" description:"name=value define passed to the transpiler, may be repeated"`
	DotEnv    bool     `long:"dotenv" description:"load defines from a .env file at the root"`
	BridgeCmd string   `long:"bridge-cmd" description:"command to launch and speak the file-resolver bridge protocol with over its stdin/stdout"`
}

type options struct {
	Serve serveCmd `command:"serve" description:"run the sandbox dev server over a directory tree"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	subCommands := map[string]func() int{
		"serve": func() int { return runServe(opts.Serve) },
	}

	active := parser.Active
	if active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	run, ok := subCommands[active.Name]
	if !ok {
		fmt.Fprintf(os.Stderr, "sandboxd: unknown command %q\n", active.Name)
		os.Exit(1)
	}
	os.Exit(run())
}
