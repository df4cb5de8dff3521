// mzheat accumulates the peaks of mzML files into retention time by m/z
// intensity surfaces, with an overlay of the MS2 spectra
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/524D/mzheat/internal/ingest"
)

const progName = "mzheat"

// progVersion is set with -ldflags "-X main.progVersion=..."
var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// exitCanceled is the exit code after an interrupt, as for shells
const exitCanceled = 130

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if errors.Is(err, ingest.ErrCanceled) {
		fmt.Fprintf(os.Stderr, "%s: interrupted: %v\n", progName, err)
		os.Exit(exitCanceled)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
