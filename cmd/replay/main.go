package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/eval"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/replay"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/source"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	dir := flag.String("dir", "", "directory of fixture JSON files (evaluation mode)")
	jsonlPath := flag.String("jsonl", "", "recorded JSON-lines samples (trace mode)")
	modeFlag := flag.String("mode", "", "override detection mode (conservative|balanced|sensitive)")
	steps := flag.Bool("steps", false, "print every phase decision")
	flag.Parse()

	set := 0
	for _, v := range []string{*fixturePath, *dir, *jsonlPath} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--mode m] [--steps]")
		fmt.Fprintln(os.Stderr, "       replay --dir path/to/fixtures [--mode m]")
		fmt.Fprintln(os.Stderr, "       replay --jsonl path/to/samples.jsonl [--mode m] [--steps]")
		os.Exit(2)
	}

	var mode profile.Mode
	if *modeFlag != "" {
		m, err := profile.ParseMode(*modeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		mode = m
	}

	var exitCode int
	switch {
	case *fixturePath != "":
		exitCode = runFixtureMode(*fixturePath, mode, *steps)
	case *dir != "":
		exitCode = runDirMode(*dir, mode)
	default:
		exitCode = runTraceMode(*jsonlPath, mode, *steps)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string, mode profile.Mode, showSteps bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	r := run(f, mode)
	if showSteps {
		printSteps(r)
	}
	printEvents(r)

	c := replay.Compare(f, r)
	fmt.Printf("\nSummary: %s, mode=%s, %d samples, %d rejected, expected %d events, got %d\n",
		f.Description, r.Mode, r.Samples, r.Rejected, c.Expected, c.Got)
	if !c.Passed {
		for _, msg := range c.Failures {
			fmt.Printf("  DIFF: %s\n", msg)
		}
		return 1
	}
	fmt.Println("  OK")
	return 0
}

func run(f *replay.Fixture, mode profile.Mode) replay.Result {
	if mode == "" {
		return replay.Run(f)
	}
	return replay.RunMode(f, mode)
}

// #endregion fixture-mode

// #region dir-mode

func runDirMode(dir string, mode profile.Mode) int {
	fixtures, names, err := replay.LoadFixtureDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
		return 2
	}
	if len(names) == 0 {
		fmt.Fprintf(os.Stderr, "no fixtures in %s\n", dir)
		return 2
	}

	fmt.Printf("%-32s| %-12s| %-6s| %-9s| %-7s| %s\n", "Fixture", "Mode", "Label", "Expected", "Events", "Match")
	fmt.Printf("%s+%s+%s+%s+%s+%s\n",
		strings.Repeat("-", 32), strings.Repeat("-", 13), strings.Repeat("-", 7),
		strings.Repeat("-", 10), strings.Repeat("-", 8), "------")

	var outcomes []eval.Outcome
	diverge := 0
	for _, name := range names {
		f := fixtures[name]
		r := run(f, mode)
		c := replay.Compare(f, r)
		match := "OK"
		if !c.Passed {
			match = "DIFF"
			diverge++
		}
		fmt.Printf("%-32s| %-12s| %-6s| %-9d| %-7d| %s\n", name, r.Mode, f.Label, c.Expected, c.Got, match)
		outcomes = append(outcomes, r.Outcome(name, f))
	}

	report := eval.Score(outcomes)
	fmt.Printf("\nOverall: %s\n", report.Overall)
	for _, m := range report.Modes() {
		fmt.Printf("  %-12s %s\n", m, report.ByMode[m])
	}
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", len(names), len(names)-diverge, diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

// #endregion dir-mode

// #region trace-mode

func runTraceMode(path string, mode profile.Mode, showSteps bool) int {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open trace: %v\n", err)
		return 2
	}
	defer file.Close()

	out := make(chan source.Reading, 64)
	errc := make(chan error, 1)
	var stats source.Stats
	go func() {
		defer close(out)
		s, err := source.ReadJSONLines(context.Background(), file, out)
		stats = s
		errc <- err
	}()

	f := &replay.Fixture{Description: path, Mode: string(mode), Label: eval.LabelADL}
	first := true
	origin := replay.Epoch
	for rd := range out {
		if first {
			origin = rd.Sample.Timestamp
			first = false
		}
		f.Samples = append(f.Samples, replay.FromSample(rd.Sample, origin))
	}
	if err := <-errc; err != nil {
		fmt.Fprintf(os.Stderr, "read trace: %v\n", err)
		return 2
	}

	r := run(f, mode)
	if showSteps {
		printSteps(r)
	}
	printEvents(r)
	fmt.Printf("\nSummary: %d lines, %d skipped, %d samples, %d rejected, %d events (mode=%s)\n",
		stats.Lines, stats.Skipped, r.Samples, r.Rejected, len(r.Events), r.Mode)
	return 0
}

// #endregion trace-mode

// #region output

func printSteps(r replay.Result) {
	fmt.Printf("%-8s| %-10s| %-12s| %-12s| %-6s| %s\n", "t_ms", "Action", "From", "To", "Conf", "Reason")
	fmt.Printf("%s+%s+%s+%s+%s+%s\n",
		strings.Repeat("-", 8), strings.Repeat("-", 11), strings.Repeat("-", 13),
		strings.Repeat("-", 13), strings.Repeat("-", 7), "--------")
	for _, s := range r.Steps {
		fmt.Printf("%-8d| %-10s| %-12s| %-12s| %-6.2f| %s\n",
			s.Offset.Milliseconds(), s.Decision.Action, s.Decision.From, s.Decision.To,
			s.Metrics.Confidence, s.Decision.Reason)
	}
	fmt.Println()
}

func printEvents(r replay.Result) {
	if len(r.Events) == 0 {
		fmt.Println("no events")
		return
	}
	for _, ev := range r.Events {
		fmt.Printf("event %s at %s: confidence=%.3f (%s) max_impact=%.2fg rotation=%v attitude=%.2frad\n",
			ev.ID, ev.Timestamp.Sub(replay.Epoch), ev.Confidence, ev.ConfidenceLevel(),
			ev.MaxImpact, ev.HadRotation, ev.MaxAttitudeChange)
	}
}

// #endregion output
