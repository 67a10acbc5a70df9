// Command lpne fits, applies and tunes supervised factor models on spectral
// feature datasets.
//
//	lpne synth   -out data.json
//	lpne fit     -model fa_sae -data data.json -out model.json
//	lpne predict -model-file model.json -data data.json
//	lpne score   -model-file model.json -data data.json
//	lpne factor  -model-file model.json -k 0
//	lpne tune    -model cp_sae -data data.json -out best.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	_ "github.com/tsawler/go-lpne/cpsae"
	"github.com/tsawler/go-lpne/engine"
	_ "github.com/tsawler/go-lpne/fasae"
	"github.com/tsawler/go-lpne/model"
)

type command struct {
	name string
	help string
	run  func(args []string) error
}

var commands = []command{
	{"synth", "write a synthetic dataset", runSynth},
	{"fit", "fit a model and save it", runFit},
	{"predict", "print predicted labels or probabilities", runPredict},
	{"score", "print weighted accuracy and diagnostics", runScore},
	{"factor", "print one factor as [region pairs, frequencies]", runFactor},
	{"tune", "search hyper-parameters", runTune},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	for _, cmd := range commands {
		if cmd.name == os.Args[1] {
			if err := cmd.run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "lpne %s: %v\n", cmd.name, err)
				os.Exit(1)
			}
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lpne <command> [flags]")
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", cmd.name, cmd.help)
	}
	fmt.Fprintf(os.Stderr, "models: %s\n", strings.Join(model.Names(), ", "))
}

// runtimeFlags are shared by every command that builds an execution context.
type runtimeFlags struct {
	device  *string
	seed    *int64
	chunk   *int
	verbose *bool
}

func addRuntimeFlags(fs *flag.FlagSet) runtimeFlags {
	return runtimeFlags{
		device:  fs.String("device", engine.DeviceAuto, "execution device (auto or cpu)"),
		seed:    fs.Int64("seed", 0, "random seed"),
		chunk:   fs.Int("chunk", 0, "inference chunk size (0 for the default)"),
		verbose: fs.Bool("v", false, "log training progress"),
	}
}

func (f runtimeFlags) context() (*engine.Context, error) {
	logger := zap.NewNop()
	if *f.verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return engine.New(engine.Options{
		Device:    *f.device,
		Seed:      *f.seed,
		ChunkSize: *f.chunk,
		Logger:    logger,
	})
}

// readParams loads a JSON object of hyper-parameters. An empty path yields
// no parameters.
func readParams(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, errors.Annotatef(err, "parse %s", path)
	}
	return params, nil
}

// writeJSON writes v to path, or to stdout when path is empty.
func writeJSON(path string, v any) error {
	out := os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return errors.Trace(err)
		}
		defer file.Close()
		out = file
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errors.Trace(enc.Encode(v))
}

func requireFlags(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if fs.Lookup(name).Value.String() == "" {
			return errors.NotValidf("missing -%s", name)
		}
	}
	return nil
}
