// Command sopipe is the process entry point (spec.md §6): it registers
// every component, compiles the script named on the command line into a
// node graph, and drives it through the scheduler's Init→Run→Shut
// lifecycle. Grounded on the teacher's cmd/pipeline/main.go — bare
// flag.FlagSet, a version/buildTime pair, stdlib log — generalized from
// a YAML-config pipeline runner to a single-script DSL interpreter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/compiler"
	"github.com/ylxdzsw/sopipe/internal/components/aead"
	"github.com/ylxdzsw/sopipe/internal/components/auth"
	"github.com/ylxdzsw/sopipe/internal/components/balance"
	"github.com/ylxdzsw/sopipe/internal/components/deflate"
	"github.com/ylxdzsw/sopipe/internal/components/drop"
	"github.com/ylxdzsw/sopipe/internal/components/echo"
	"github.com/ylxdzsw/sopipe/internal/components/kafka"
	"github.com/ylxdzsw/sopipe/internal/components/socks5"
	"github.com/ylxdzsw/sopipe/internal/components/stdio"
	"github.com/ylxdzsw/sopipe/internal/components/tcp"
	"github.com/ylxdzsw/sopipe/internal/components/tee"
	"github.com/ylxdzsw/sopipe/internal/components/udp"
	"github.com/ylxdzsw/sopipe/internal/components/xor"
	"github.com/ylxdzsw/sopipe/internal/scheduler"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func registeredComponents() []component.Component {
	return []component.Component{
		echo.New(),
		drop.New(),
		xor.New(),
		tee.New(),
		balance.New(),
		stdio.New(),
		tcp.New(),
		udp.New(),
		socks5.New(),
		auth.New(),
		aead.New(),
		deflate.New(),
		kafka.New(),
	}
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sopipe %s (built: %s)\n", version, buildTime)
		os.Exit(0)
	}

	components := registeredComponents()

	if flag.NArg() != 1 {
		fmt.Println(strings.Join(functionNames(components), " "))
		os.Exit(0)
	}

	scriptPath := flag.Arg(0)
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[sopipe] cannot read %s: %v\n", scriptPath, err)
		os.Exit(1)
	}

	graph, err := compiler.Build(string(src), components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[sopipe] %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys := actorsys.NewSystem(ctx, graph)
	log.Printf("[sopipe] running %s", scriptPath)
	if err := scheduler.Run(ctx, cancel, sys); err != nil {
		if sopipeerr.Is(err, sopipeerr.KindFatal) || sopipeerr.Is(err, sopipeerr.KindMisuse) {
			fmt.Fprintf(os.Stderr, "[sopipe] %v\n", err)
			os.Exit(1)
		}
		log.Printf("[sopipe] %v", err)
	}
}

// functionNames returns every registered component's DSL identifiers,
// sorted, for the no-argument / wrong-arity listing (spec.md §6).
func functionNames(components []component.Component) []string {
	var names []string
	for _, c := range components {
		names = append(names, c.Functions()...)
	}
	sort.Strings(names)
	return names
}
