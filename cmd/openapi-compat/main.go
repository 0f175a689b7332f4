// Package main provides a CLI to check that the API stays backward compatible
// with a published swagger document.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"minisocial/docs"
	"minisocial/internal/apicompat"
)

func main() {
	basePath := flag.String("base", "", "base swagger (yaml or json) path")
	revisionPath := flag.String("revision", "", "revision swagger path (default: docs built into this binary)")
	flag.Parse()

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -base <path> [-revision <path>]")
		os.Exit(2)
	}

	baseSpec, err := loadSpec(*basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base spec: %v\n", err)
		os.Exit(1)
	}

	var revisionSpec apicompat.Spec
	if strings.TrimSpace(*revisionPath) == "" {
		revisionSpec, err = apicompat.Parse([]byte(docs.SwaggerInfo.ReadDoc()))
	} else {
		revisionSpec, err = loadSpec(*revisionPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load revision spec: %v\n", err)
		os.Exit(1)
	}

	issues := apicompat.Compare(baseSpec, revisionSpec)
	if len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}

	fmt.Println("openapi compatibility check passed")
}

func loadSpec(path string) (apicompat.Spec, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return apicompat.Spec{}, err
	}
	return apicompat.Parse(raw)
}
