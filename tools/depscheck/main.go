package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "hexhold/server/"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing packages under To.
type rule struct {
	From string
	To   string
}

// The domain core must not depend on transport, storage or wiring, and the
// transport must not reach into storage.
var layering = []rule{
	{From: "internal/hexgrid", To: "internal/roads"},
	{From: "internal/sdf", To: "internal/roads"},
	{From: "internal/roads", To: "internal/actions"},
	{From: "internal/roads", To: "internal/net"},
	{From: "internal/roads", To: "internal/storage"},
	{From: "internal/actions", To: "internal/net"},
	{From: "internal/actions", To: "internal/storage"},
	{From: "internal/net", To: "internal/storage"},
	{From: "internal/", To: "internal/app"},
	{From: "logging", To: "internal/"},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	pkgs, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if violations := findViolations(pkgs, layering); len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var pkgs []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
}

func findViolations(pkgs []packageInfo, rules []rule) []string {
	var violations []string
	for _, pkg := range pkgs {
		from := strings.TrimPrefix(pkg.ImportPath, modulePath)
		for _, imp := range pkg.Imports {
			if !strings.HasPrefix(imp, modulePath) {
				continue
			}
			to := strings.TrimPrefix(imp, modulePath)
			for _, r := range rules {
				if strings.HasPrefix(from, r.From) && strings.HasPrefix(to, r.To) && !strings.HasPrefix(from, r.To) {
					violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					break
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}
