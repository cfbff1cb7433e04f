//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/integralist/go-findroot/find"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/mholt/archiver"
	"github.com/wrouesnel/sheets-replicator/version"
)

var binaries = []string{
	"sheets-replicator",
	"entrypoint",
}

func rootPath() (string, error) {
	root, err := find.Repo()
	if err != nil {
		return "", err
	}
	return root.Path, nil
}

// Build compiles all binaries into bin/.
func Build() error {
	root, err := rootPath()
	if err != nil {
		return err
	}

	for _, binary := range binaries {
		if err := sh.RunV("go", "build",
			"-ldflags", fmt.Sprintf("-X %s/version.Version=%s", "github.com/wrouesnel/sheets-replicator", releaseVersion()),
			"-o", filepath.Join(root, "bin", binary),
			fmt.Sprintf("./cmd/%s", binary)); err != nil {
			return err
		}
	}

	return nil
}

// Test runs the test suite.
func Test() error {
	return sh.RunV("go", "test", "-v", "./...")
}

// Lint runs golangci-lint if available.
func Lint() error {
	return sh.RunV("golangci-lint", "run")
}

// Release builds the binaries and packages them into a release archive.
func Release() error {
	mg.Deps(Build)

	root, err := rootPath()
	if err != nil {
		return err
	}

	sources := []string{}
	for _, binary := range binaries {
		sources = append(sources, filepath.Join(root, "bin", binary))
	}

	archiveName := filepath.Join(root, fmt.Sprintf("%s_%s.tar.gz", version.Name, releaseVersion()))
	_ = os.Remove(archiveName)

	return archiver.Archive(sources, archiveName)
}

// Clean removes build outputs.
func Clean() error {
	root, err := rootPath()
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(root, "bin"))
}

func releaseVersion() string {
	if v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil {
		return v
	}
	return version.Version
}
