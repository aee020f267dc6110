package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/narralabs/narra-core/internal/voices"
)

var version = "0.1.0-dev"

func main() {
	var catalogPath string
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&catalogPath, "file", "voices.yaml", "Path to voice catalog")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := runValidate(catalogPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runValidate(path string) error {
	catalog, err := voices.Load(path, "")
	if err != nil {
		return err
	}
	list := catalog.List()
	fmt.Printf("catalog valid: %d voices, default %q\n", len(list), catalog.Default().Name)
	for _, v := range list {
		fmt.Printf("  %s -> %s (%s)\n", v.Name, v.VoiceID, v.ModelID)
	}
	return nil
}
