package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/sosappend/internal/app"
	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sos"
	"github.com/specialistvlad/sosappend/internal/sosid"
	"github.com/specialistvlad/sosappend/internal/versioning"
	ucli "github.com/urfave/cli/v2"
)

// Exit codes.
const (
	ExitFailure  = 1
	ExitUsage    = 2
	ExitConflict = 3
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode implements urfave/cli's ExitCoder.
func (e *ExitError) ExitCode() int {
	return e.Code
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// classify maps an App error onto its exit code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	code := ExitFailure
	switch {
	case errors.Is(err, app.ErrInvalidInvocation):
		code = ExitUsage
	case errors.Is(err, versioning.ErrVersionConflict):
		code = ExitConflict
	}
	return &ExitError{Code: code, Message: err.Error(), Err: err}
}

// Run parses args (without the program name) and executes the selected
// command. Every error it returns is an *ExitError.
func Run(ctx context.Context, args []string, output io.Writer) error {
	return classify(New(output).RunContext(ctx, append([]string{"sosappend"}, args...)))
}

var globalFlags = []ucli.Flag{
	&ucli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to the HCL job file.", EnvVars: []string{"SOSAPPEND_CONFIG"}},
	&ucli.StringFlag{Name: "log-format", Value: "json", Usage: "Log output format: 'text' or 'json'."},
	&ucli.StringFlag{Name: "log-level", Value: "info", Usage: "Logging level: 'debug', 'info', 'warn', 'error'."},
	&ucli.IntFlag{Name: "healthcheck-port", Usage: "Port for the /health and /metrics server. 0 is disabled."},
	&ucli.StringFlag{Name: "writer", Usage: "Writer id recorded in committed versions. Defaults to a random UUID."},
}

var selectFlags = []ucli.Flag{
	&ucli.StringSliceFlag{Name: "continent", Usage: "Continent code; repeat or comma-separate for several."},
	&ucli.StringFlag{Name: "run-type", Value: string(module.Unconstrained), Usage: "'constrained' or 'unconstrained'."},
}

// New builds the command tree writing to output.
func New(output io.Writer) *ucli.App {
	return &ucli.App{
		Name:      "sosappend",
		Usage:     "Merge stage outputs into the versioned SWORD of Science.",
		Writer:    output,
		ErrWriter: output,
		Flags:     globalFlags,
		Commands: []*ucli.Command{
			{
				Name:  "append",
				Usage: "Merge stage contributions into the next version.",
				Flags: append([]ucli.Flag{
					&ucli.StringSliceFlag{Name: "modules", Aliases: []string{"m"}, Usage: "Stages to merge, in order. Defaults to every stage."},
					&ucli.StringFlag{Name: "continent-file", Usage: "JSON list of {continent: basins} entries."},
					&ucli.IntFlag{Name: "index", Value: -1, Usage: "Entry of --continent-file to process.", EnvVars: []string{"AWS_BATCH_JOB_ARRAY_INDEX"}},
					&ucli.StringFlag{Name: "figures-dir", Usage: "Directory of validation figures to upload with the version."},
					&ucli.IntFlag{Name: "max-attempts", Usage: "Read-merge-commit passes before giving up on conflicts. Overrides the job file."},
					&ucli.IntFlag{Name: "concurrency", Usage: "Parallel reads and continents. Overrides the job file."},
				}, selectFlags...),
				Action:       appendAction,
				OnUsageError: onUsageError,
			},
			{
				Name:         "latest",
				Usage:        "Print the latest pointer of a continent and run type.",
				Flags:        selectFlags,
				Action:       latestAction,
				OnUsageError: onUsageError,
			},
			{
				Name:         "versions",
				Usage:        "List committed versions and any dangling version blobs.",
				Flags:        selectFlags,
				Action:       versionsAction,
				OnUsageError: onUsageError,
			},
		},
		OnUsageError: onUsageError,
		// Exit codes are applied by main, never by the library.
		ExitErrHandler: func(*ucli.Context, error) {},
	}
}

func onUsageError(_ *ucli.Context, err error, _ bool) error {
	return usageError("%v", err)
}

func newApp(c *ucli.Context) (*app.App, error) {
	cfg, err := app.NewConfig(app.Config{
		JobFile:         c.String("config"),
		LogFormat:       strings.ToLower(c.String("log-format")),
		LogLevel:        strings.ToLower(c.String("log-level")),
		HealthcheckPort: c.Int("healthcheck-port"),
		Writer:          c.String("writer"),
		MaxAttempts:     c.Int("max-attempts"),
		Concurrency:     c.Int("concurrency"),
	})
	if err != nil {
		return nil, usageError("%v", err)
	}
	return app.NewApp(c.Context, c.App.Writer, cfg)
}

// continents resolves --continent and --continent-file/--index.
func continents(c *ucli.Context) ([]string, error) {
	out := c.StringSlice("continent")
	if file := c.String("continent-file"); file != "" {
		if c.Int("index") < 0 {
			return nil, usageError("--continent-file needs --index or AWS_BATCH_JOB_ARRAY_INDEX")
		}
		continent, err := app.LoadContinent(file, c.Int("index"))
		if err != nil {
			return nil, usageError("%v", err)
		}
		out = append(out, continent)
	}
	if len(out) == 0 {
		return nil, usageError("a continent is required: use --continent or --continent-file")
	}
	return out, nil
}

func appendAction(c *ucli.Context) error {
	conts, err := continents(c)
	if err != nil {
		return err
	}
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start()

	modules := c.StringSlice("modules")
	if !c.IsSet("modules") {
		modules = allModules()
	}
	invs := make([]app.Invocation, len(conts))
	for i, continent := range conts {
		invs[i] = app.Invocation{
			Continent:  continent,
			RunType:    c.String("run-type"),
			Modules:    modules,
			FiguresDir: c.String("figures-dir"),
		}
	}

	var results []*app.Result
	if len(invs) == 1 {
		res, aerr := a.Append(c.Context, invs[0])
		results, err = []*app.Result{res}, aerr
	} else {
		results, err = a.AppendMany(c.Context, invs)
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s/%s v%s modules=%s attempts=%d figures=%d\n",
			res.Continent, res.RunType, sos.VersionLabel(res.Version),
			joinModules(res.Modules), res.Attempts, res.Figures)
	}
	return err
}

// allModules lists every stage in pipeline order, merged when --modules is
// not given.
func allModules() []string {
	all := module.All()
	names := make([]string, len(all))
	for i, m := range all {
		names[i] = string(m)
	}
	return names
}

func joinModules(ms []module.Name) string {
	if len(ms) == 0 {
		return "-"
	}
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

// selection parses the single continent and run type of a read command.
func selection(c *ucli.Context) (string, module.RunType, error) {
	conts := c.StringSlice("continent")
	if len(conts) != 1 {
		return "", "", usageError("exactly one --continent is required")
	}
	continent, err := sosid.ParseContinent(conts[0])
	if err != nil {
		return "", "", usageError("%v", err)
	}
	runType, err := module.ParseRunType(c.String("run-type"))
	if err != nil {
		return "", "", usageError("%v", err)
	}
	return continent, runType, nil
}

func latestAction(c *ucli.Context) error {
	continent, runType, err := selection(c)
	if err != nil {
		return err
	}
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Manager().LatestPointer(c.Context, continent, runType)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintf(c.App.Writer, "%s/%s has no committed version\n", continent, runType)
		return nil
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func versionsAction(c *ucli.Context) error {
	continent, runType, err := selection(c)
	if err != nil {
		return err
	}
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.Manager().Versions(c.Context, continent, runType)
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Fprintf(c.App.Writer, "v%s %s\n", sos.VersionLabel(v), a.Manager().Layout().VersionKey(continent, runType, v))
	}
	dangling, err := a.Manager().Dangling(c.Context, continent, runType)
	if err != nil {
		return err
	}
	for _, key := range dangling {
		fmt.Fprintf(c.App.Writer, "dangling %s\n", key)
	}
	return nil
}
