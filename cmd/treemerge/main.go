package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/fatih/color"

	"github.com/mattn/go-isatty"

	"github.com/pkg/errors"

	"github.com/spf13/cobra"

	"gopkg.in/yaml.v3"

	"github.com/treemerge-io/treemerge/pkg/dom"
	"github.com/treemerge-io/treemerge/pkg/logging"
	"github.com/treemerge-io/treemerge/pkg/merge"
)

const (
	// exitSuccess is the exit code for a successfully emitted merge.
	exitSuccess = 0
	// exitConflict is the exit code for an aborted, conflicting merge.
	exitConflict = 1
	// exitError is the exit code for usage and I/O errors.
	exitError = 2
)

// fatal prints an error message to standard error and terminates the
// process with the specified exit code.
func fatal(err error, code int) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
	os.Exit(code)
}

// configuration is the YAML configuration file format.
type configuration struct {
	// Text holds the character-level text merge tunables.
	Text struct {
		MatchThreshold  float64 `yaml:"matchThreshold"`
		MatchDistance   int     `yaml:"matchDistance"`
		DeleteThreshold float64 `yaml:"deleteThreshold"`
	} `yaml:"text"`
}

// loadMergerOptions resolves the text merge tunables, overlaying any
// configuration file onto the defaults.
func loadMergerOptions(path string) (dom.MergerOptions, error) {
	options := dom.DefaultMergerOptions()
	if path == "" {
		return options, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return options, errors.Wrap(err, "unable to read configuration file")
	}
	var config configuration
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return options, errors.Wrap(err, "unable to parse configuration file")
	}
	if config.Text.MatchThreshold != 0 {
		options.MatchThreshold = config.Text.MatchThreshold
	}
	if config.Text.MatchDistance != 0 {
		options.MatchDistance = config.Text.MatchDistance
	}
	if config.Text.DeleteThreshold != 0 {
		options.DeleteThreshold = config.Text.DeleteThreshold
	}
	return options, nil
}

// isConflict determines whether an error represents a merge conflict as
// opposed to a usage or input problem.
func isConflict(err error) bool {
	var structural *merge.StructuralConflictError
	var content *merge.ContentConflictError
	return errors.As(err, &structural) || errors.As(err, &content)
}

func rootMain(command *cobra.Command, arguments []string) {
	// Disable colorized output when standard error isn't a terminal.
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		color.NoColor = true
	}

	// Validate arguments.
	if len(arguments) < 3 || len(arguments) > 4 {
		command.Usage()
		os.Exit(exitError)
	}

	// Resolve the text merge tunables.
	options, err := loadMergerOptions(rootConfiguration.config)
	if err != nil {
		fatal(err, exitError)
	}

	// Open the three input documents.
	var inputs [3]*os.File
	for i, path := range arguments[:3] {
		file, err := os.Open(path)
		if err != nil {
			fatal(errors.Wrap(err, "unable to open input"), exitError)
		}
		defer file.Close()
		inputs[i] = file
	}

	// Parse them into identified trees, imputing identifiers if needed.
	base, first, second, err := dom.ParseTrees(inputs[0], inputs[1], inputs[2], nil)
	if err != nil {
		fatal(err, exitError)
	}

	// Set up the trace logger.
	var logger *logging.Logger
	if level, ok := logging.NameToLevel(rootConfiguration.logLevel); ok {
		logger = logging.NewLogger(level).Sublogger("merge")
	}

	// Merge, recording the edit script if requested.
	var recorder *merge.Recorder
	var edits merge.EditHandler
	if rootConfiguration.edits {
		recorder = &merge.Recorder{}
		edits = recorder
	}
	merger := &merge.Merger{
		NodeMerger:  dom.NewMerger(&options),
		EditHandler: edits,
		Logger:      logger,
	}
	merged, err := merger.Merge(base, first, second)
	if err != nil {
		if isConflict(err) {
			fmt.Fprintln(os.Stderr, color.YellowString("Conflict:"), err)
			os.Exit(exitConflict)
		}
		fatal(err, exitError)
	}

	// Print the edit script if requested.
	if recorder != nil {
		for _, edit := range recorder.Edits {
			switch edit.Kind {
			case merge.EditInsert:
				fmt.Fprintf(os.Stderr, "%s %s into %s at %d (%s)\n",
					edit.Kind, edit.ID, edit.ParentID, edit.Position, edit.Origin)
			case merge.EditMove:
				fmt.Fprintf(os.Stderr, "%s %s to %s at %d (%s)\n",
					edit.Kind, edit.ID, edit.ParentID, edit.Position, edit.Origin)
			default:
				fmt.Fprintf(os.Stderr, "%s %s (%s)\n", edit.Kind, edit.ID, edit.Origin)
			}
		}
	}

	// Serialize the merged document.
	output := os.Stdout
	if len(arguments) == 4 {
		file, err := os.Create(arguments[3])
		if err != nil {
			fatal(errors.Wrap(err, "unable to create output"), exitError)
		}
		defer file.Close()
		output = file
	}
	serializerOptions := &dom.SerializerOptions{
		KeepGeneratedIDs: rootConfiguration.keepGeneratedIDs,
	}
	if err := dom.Render(output, merged, serializerOptions); err != nil {
		fatal(errors.Wrap(err, "unable to serialize merged document"), exitError)
	}
	if output == os.Stdout {
		fmt.Println()
	}

	// Print a summary if requested.
	if rootConfiguration.verbose {
		fmt.Fprintf(os.Stderr, "Merged %s nodes", humanize.Comma(int64(merged.Len())))
		if recorder != nil {
			fmt.Fprintf(os.Stderr, " with %s edits", humanize.Comma(int64(len(recorder.Edits))))
		}
		fmt.Fprintln(os.Stderr)
	}
}

var rootCommand = &cobra.Command{
	Use:   "treemerge <base> <first> <second> [output]",
	Short: "Treemerge performs three-way merges of HTML documents.",
	Run:   rootMain,
}

var rootConfiguration struct {
	help             bool
	config           string
	logLevel         string
	edits            bool
	keepGeneratedIDs bool
	verbose          bool
}

func init() {
	// Bind flags to configuration. We manually add help to override the
	// default message, but Cobra still implements it automatically.
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&rootConfiguration.config, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "", "Trace log level (error, warn, info, debug, trace)")
	flags.BoolVar(&rootConfiguration.edits, "edits", false, "Print the edit script to standard error")
	flags.BoolVar(&rootConfiguration.keepGeneratedIDs, "keep-generated-ids", false, "Emit synthesized id attributes in the output")
	flags.BoolVarP(&rootConfiguration.verbose, "verbose", "v", false, "Print a merge summary to standard error")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(exitError)
	}
}
