package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/eftl-go/examples"
)

// runInit writes the example profile into dir. An existing profile is
// never overwritten.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "profile.yaml")
	if err := writeIfMissing(path, examples.ProfileYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", path)
	fmt.Fprintln(w, "edit the url and credentials, then run: eftl-demo sub")
	return nil
}

// writeIfMissing writes data to path unless the file already exists.
func writeIfMissing(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
