// Package main provides the mmpkl CLI for inspecting save directories.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/mmpickle/internal/loader"
	"github.com/born-ml/mmpickle/serialization"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "mmpkl %s - memory-mapped model directories\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  inspect [-format text|json|yaml] <dir>   List the buffers of a save directory")
	fmt.Fprintln(w, "  verify [-v] <dir>                        Check buffer sizes and checksums")
	fmt.Fprintln(w, "  import [-overwrite] <file> <dir>         Convert a .safetensors file")
	fmt.Fprintln(w, "  version                                  Show version")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 0
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "mmpkl %s\n", version)
		return 0
	case "inspect":
		err = inspectCmd(args[1:], stdout, stderr)
	case "verify":
		err = verifyCmd(args[1:], stdout, stderr)
	case "import":
		err = importCmd(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		usage(stderr)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "mmpkl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func inspectCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one directory")
	}

	m, err := serialization.Inspect(fs.Arg(0))
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		return printManifest(stdout, m)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func printManifest(w io.Writer, m *serialization.Manifest) error {
	fmt.Fprintf(w, "Directory: %s\n", m.Dir)
	fmt.Fprintf(w, "Protocol:  %d\n", m.Protocol)
	if m.SaveID != "" {
		fmt.Fprintf(w, "Save ID:   %s\n", m.SaveID)
	}
	if !m.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:   %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	for _, k := range slices.Sorted(maps.Keys(m.Meta)) {
		fmt.Fprintf(w, "Meta:      %s=%s\n", k, m.Meta[k])
	}
	fmt.Fprintf(w, "\n%-12s %-8s %10s %12s %5s  %s\n", "KEY", "DTYPE", "COUNT", "BYTES", "REFS", "STATUS")
	for _, b := range m.Buffers {
		status := "ok"
		switch {
		case !b.Present():
			status = "missing"
		case !b.Complete():
			status = fmt.Sprintf("truncated (%d bytes)", b.FileSize)
		}
		fmt.Fprintf(w, "%-12s %-8s %10d %12d %5d  %s\n", b.Key, b.DType, b.Count, b.Bytes, b.Refs, status)
	}
	_, err := fmt.Fprintf(w, "\n%d buffers, %d bytes\n", len(m.Buffers), m.TotalBytes)
	return err
}

func verifyCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "log every buffer checked")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one directory")
	}
	dir := fs.Arg(0)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	m, err := serialization.Inspect(dir)
	if err != nil {
		return err
	}
	for _, b := range m.Buffers {
		logger.Debug("checking buffer", "key", b.Key, "dtype", b.DType, "bytes", b.Bytes, "checksum", b.Checksum != "")
	}
	if !m.HasChecksums() {
		logger.Warn("skeleton has no checksums for some buffers, only sizes are checked", "dir", dir)
	}

	if err := serialization.Verify(dir); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d buffers OK\n", dir, len(m.Buffers))
	return nil
}

func importCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	overwrite := fs.Bool("overwrite", false, "replace an existing save in dir")
	verbose := fs.Bool("v", false, "log every buffer written")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("expected a .safetensors file and a directory")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := serialization.DefaultSaveOptions()
	opts.Overwrite = *overwrite
	opts.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	n, err := loader.ImportSafeTensors(fs.Arg(0), fs.Arg(1), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %d tensors into %s\n", n, fs.Arg(1))
	return nil
}
