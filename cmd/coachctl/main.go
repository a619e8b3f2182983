// coachctl builds coaching context and training metrics from local files,
// without a database or a coaching backend.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/athlete"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	"github.com/briangreenhill/coachiq/internal/prompt"
	"github.com/briangreenhill/coachiq/internal/training"
)

const version = "coachctl v0.2.0"

const usage = `Usage: coachctl <command> [flags]

Commands:
  context    -f snapshot.json [-days N] [-prompts file.yaml]   print the coaching context
  summary    -f snapshot.json [-days N]                        print the one-paragraph summary
  tokens     -f snapshot.json [-days N]                        estimate context tokens
  optimize   -f snapshot.json -max-tokens N                    fit the context into a token budget
  readiness  -sleep 1-5 -stress 1-10 -mood 1-5 [-hrv ms -baseline ms] [-soreness 3,4]
  load       -f steps.json [-sport running]                    training stress of a structured workout
  acwr       -acute N -chronic N                               acute:chronic workload ratio
  version
`

var errUsage = errors.New("invalid usage")

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger()
	if err := runCLI(os.Args[1:], os.Stdout, log); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		log.Fatal().Err(err).Msg("coachctl failed")
	}
}

func runCLI(args []string, out io.Writer, log zerolog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	switch args[0] {
	case "help", "--help", "-h":
		_, err := fmt.Fprint(out, usage)
		return err
	case "version", "--version", "-v":
		_, err := fmt.Fprintln(out, version)
		return err
	case "context", "summary", "tokens", "optimize":
		return runContext(args[0], args[1:], out, log)
	case "readiness":
		return runReadiness(args[1:], out)
	case "load":
		return runLoad(args[1:], out)
	case "acwr":
		return runACWR(args[1:], out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// readSnapshot loads a snapshot file and clamps its scales the way the store does
func readSnapshot(path string) (athlete.Snapshot, error) {
	var snap athlete.Snapshot
	if path == "" {
		return snap, fmt.Errorf("%w: -f is required", errUsage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	for i := range snap.Workouts {
		snap.Workouts[i].Normalize()
	}
	for i := range snap.CheckIns {
		snap.CheckIns[i].Normalize()
	}
	return snap, nil
}

func runContext(cmd string, args []string, out io.Writer, log zerolog.Logger) error {
	fs := newFlagSet(cmd)
	file := fs.String("f", "", "snapshot JSON file")
	days := fs.Int("days", coachctx.DefaultDays, "lookback window in days")
	maxTokens := fs.Int("max-tokens", 2000, "token budget for optimize")
	prompts := fs.String("prompts", "", "YAML prompt override file")
	now := fs.String("now", "", "evaluate the window as of this date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	opts := []coachctx.Option{coachctx.WithTemplates(prompt.LoadWithFallback(*prompts, log))}
	if *now != "" {
		t, err := time.Parse(time.DateOnly, *now)
		if err != nil {
			return fmt.Errorf("%w: -now: %v", errUsage, err)
		}
		opts = append(opts, coachctx.WithClock(func() time.Time { return t }))
	}
	a, err := coachctx.New(opts...)
	if err != nil {
		return err
	}
	snap, err := readSnapshot(*file)
	if err != nil {
		return err
	}
	w := a.Window()
	w.Days = *days

	switch cmd {
	case "context":
		text, err := a.BuildContext(snap, w)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, text)
		return err
	case "summary":
		text, err := a.BuildSummary(snap, w)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, text)
		return err
	case "tokens":
		text, err := a.BuildContext(snap, w)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, coachctx.EstimateTokens(text))
		return err
	default:
		if *maxTokens <= 0 {
			return fmt.Errorf("%w: -max-tokens must be positive", errUsage)
		}
		opt, err := a.OptimizeWindow(snap, w, *maxTokens)
		if err != nil {
			return err
		}
		log.Info().
			Int("tokens", opt.Tokens).
			Int("days", opt.Window.Days).
			Bool("within_budget", opt.WithinBudget(*maxTokens)).
			Ints("trace", opt.Trace).
			Msg("optimized context")
		_, err = fmt.Fprintln(out, opt.Text)
		return err
	}
}

func parseSoreness(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("soreness %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func runReadiness(args []string, out io.Writer) error {
	fs := newFlagSet("readiness")
	var in training.ReadinessInput
	fs.Float64Var(&in.HRV, "hrv", 0, "morning HRV in ms")
	fs.Float64Var(&in.HRVBaseline, "baseline", 0, "HRV baseline in ms")
	fs.Float64Var(&in.SleepQuality, "sleep", 3, "sleep quality 1-5")
	fs.Float64Var(&in.Stress, "stress", 5, "stress 1-10")
	fs.Float64Var(&in.Mood, "mood", 3, "mood 1-5")
	soreness := fs.String("soreness", "", "comma separated soreness per region, 1-10")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	var err error
	if in.Soreness, err = parseSoreness(*soreness); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	_, err = fmt.Fprintf(out, "readiness: %d/100\n", training.Readiness(in))
	return err
}

func runLoad(args []string, out io.Writer) error {
	fs := newFlagSet("load")
	file := fs.String("f", "", "JSON file with an array of workout steps")
	sport := fs.String("sport", "running", "sport used to pick the zone table")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *file == "" {
		return fmt.Errorf("%w: -f is required", errUsage)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read steps: %w", err)
	}
	var steps []training.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return fmt.Errorf("parse steps %s: %w", *file, err)
	}

	load := training.SessionLoad(steps, training.TableFor(*sport))
	dist := training.ZoneDistribution(training.ZoneSeconds(steps))
	fmt.Fprintf(out, "duration: %s\n", coachctx.SecToHHMM(int64(load.DurationSeconds)))
	fmt.Fprintf(out, "tss: %.1f\n", load.TSS)
	fmt.Fprintf(out, "if: %.2f\n", training.IntensityFactor(load))
	for i, pct := range dist {
		if pct > 0 {
			fmt.Fprintf(out, "z%d: %.1f%%\n", i+1, pct)
		}
	}
	return nil
}

func runACWR(args []string, out io.Writer) error {
	fs := newFlagSet("acwr")
	acute := fs.Float64("acute", 0, "acute (7-day) load")
	chronic := fs.Float64("chronic", 0, "chronic (28-day) load")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	lr, ok := training.AssessLoad(*acute, *chronic)
	if !ok {
		return fmt.Errorf("%w: loads must be finite and chronic load positive", errUsage)
	}
	_, err := fmt.Fprintf(out, "acwr: %.2f (%s)\n", lr.Ratio, lr.Risk)
	return err
}
