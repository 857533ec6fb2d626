// Command rulelint reads rule descriptor files and reports the resulting
// definitions, or the first problem found in each file.
//
//	rulelint [-json] [-strict] [-check-conditions] [-format yaml|json] FILE...
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/liamcoop/ruledefs/internal/logger"
	"github.com/liamcoop/ruledefs/rules"
)

// fileReport is the -json output for one file
type fileReport struct {
	File  string                 `json:"file"`
	Rules []rules.RuleDefinition `json:"rules,omitempty"`
	Error string                 `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run lints every file named in args and returns the process exit status
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("rulelint", flag.ContinueOnError)
	flags.SetOutput(stderr)

	asJSON := flags.Bool("json", false, "Print definitions as JSON")
	strict := flags.Bool("strict", false, "Reject unknown keys in rule documents")
	checkConditions := flags.Bool("check-conditions", false, "Reject conditions that are not valid CEL syntax")
	formatName := flags.String("format", "yaml", "Format of files without a .yml, .yaml or .json extension")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: rulelint [flags] FILE...")
		flags.PrintDefaults()
		return 2
	}

	format, err := rules.ParseFormat(*formatName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	opts := []rules.ReaderOption{rules.WithFormat(format)}
	if *strict {
		opts = append(opts, rules.WithStrictFields())
	}
	reader := rules.NewReader(opts...)

	var checker rules.ConditionChecker
	if *checkConditions {
		c, err := rules.NewCELConditionChecker()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		checker = c
	}

	status := 0
	reports := make([]fileReport, 0, flags.NArg())
	for _, path := range flags.Args() {
		report := lintFile(reader, checker, path)
		if report.Error != "" {
			status = 1
			logger.Debug("Rule file rejected", "file", path, "error", report.Error)
		}
		reports = append(reports, report)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		return status
	}

	for _, report := range reports {
		if report.Error != "" {
			fmt.Fprintf(stderr, "%s: %s\n", report.File, report.Error)
			continue
		}
		printText(stdout, report)
	}
	return status
}

func lintFile(reader *rules.Reader, checker rules.ConditionChecker, path string) fileReport {
	report := fileReport{File: path}

	defs, err := reader.ReadAllFile(path)
	if err == nil && checker != nil {
		err = rules.CheckDefinitions(checker, defs)
	}
	if err != nil {
		report.Error = err.Error()
		return report
	}

	report.Rules = defs
	return report
}

func printText(w io.Writer, report fileReport) {
	fmt.Fprintf(w, "%s: %d rule(s)\n", report.File, len(report.Rules))
	for i, def := range report.Rules {
		fmt.Fprintf(w, "  [%d] %s (priority %d)\n", i, def.Name(), def.Priority())
		if def.Description() != rules.DefaultDescription {
			fmt.Fprintf(w, "      %s\n", def.Description())
		}
		fmt.Fprintf(w, "      when: %s\n", def.Condition())
		fmt.Fprintf(w, "      then: %s\n", strings.Join(def.Actions(), " | "))
	}
}
