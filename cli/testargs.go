package cli

// This file contains argument processing utilities for separating
// package patterns from go test flags.

import (
	"strings"
)

// Flags of go test and the test binary that take a separate value.
var valueFlags = map[string]bool{
	"-run":          true,
	"-skip":         true,
	"-count":        true,
	"-timeout":      true,
	"-parallel":     true,
	"-cpu":          true,
	"-shuffle":      true,
	"-bench":        true,
	"-benchtime":    true,
	"-fuzz":         true,
	"-fuzztime":     true,
	"-list":         true,
	"-tags":         true,
	"-p":            true,
	"-exec":         true,
	"-covermode":    true,
	"-coverpkg":     true,
	"-coverprofile": true,
	"-cpuprofile":   true,
	"-memprofile":   true,
	"-blockprofile": true,
	"-mutexprofile": true,
	"-trace":        true,
	"-outputdir":    true,
	"-o":            true,
	"-gcflags":      true,
	"-ldflags":      true,
	"-asmflags":     true,
	"-gccgoflags":   true,
	"-mod":          true,
	"-modfile":      true,
	"-overlay":      true,
	"-pkgdir":       true,
	"-toolexec":     true,
	"-vet":          true,
}

// separateTestArgs splits the arguments of the run command into package
// patterns and go test flags. A "--" separator is dropped, and -json is
// removed since it is always passed.
func separateTestArgs(args []string) (packages, flags []string) {
	packages = []string{}
	flags = []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			continue
		}

		if !strings.HasPrefix(arg, "-") {
			packages = append(packages, arg)
			continue
		}

		name := normalizeFlag(arg)
		if name == "-json" {
			continue
		}

		flags = append(flags, arg)
		// Include the value of -flag value
		if valueFlags[name] && !strings.Contains(arg, "=") && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	return packages, flags
}

// normalizeFlag returns the flag name of arg with a single leading dash and
// without the -test. prefix or a =value suffix.
func normalizeFlag(arg string) string {
	name := "-" + strings.TrimLeft(arg, "-")
	if idx := strings.Index(name, "="); idx > 0 {
		name = name[:idx]
	}
	return strings.Replace(name, "-test.", "-", 1)
}
