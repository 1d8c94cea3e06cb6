package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/eval"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/replay"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/source"
)

// #region main

func main() {
	kind := flag.String("kind", "", "synthetic trace kind, or \"all\"")
	rate := flag.Int("rate", replay.DefaultRateHz, "sample rate in Hz for synthetic traces")
	jsonlPath := flag.String("jsonl", "", "recorded JSON-lines samples to capture as a fixture")
	label := flag.String("label", "", "ground truth for a recorded trace (fall|adl)")
	modeFlag := flag.String("mode", "", "detection mode stored in the fixture")
	out := flag.String("out", "", "output fixture path, or directory with --kind all")
	flag.Parse()

	if *out == "" || (*kind == "") == (*jsonlPath == "") {
		fmt.Fprintln(os.Stderr, "usage: fixture-gen --kind fall|hard_fall|stumble|running|jumping|sitting|all --out path [--rate Hz] [--mode m]")
		fmt.Fprintln(os.Stderr, "       fixture-gen --jsonl recorded.jsonl --label fall|adl --out path [--mode m]")
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

	var err error
	if *jsonlPath != "" {
		err = capture(*jsonlPath, eval.Label(*label), mode, *out)
	} else {
		err = synthesize(*kind, *rate, mode, *out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region synthesize

func synthesize(kind string, rate int, mode profile.Mode, out string) error {
	if kind != "all" {
		return generate(replay.Kind(kind), rate, mode, out)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	for _, k := range replay.Kinds() {
		path := filepath.Join(out, fmt.Sprintf("%s_%dhz.json", k, rate))
		if err := generate(k, rate, mode, path); err != nil {
			return err
		}
	}
	return nil
}

func generate(kind replay.Kind, rate int, mode profile.Mode, path string) error {
	f, err := replay.Synthesize(kind, rate)
	if err != nil {
		return err
	}
	if mode != "" {
		f.Mode = string(mode)
	}
	return write(f, path)
}

// #endregion synthesize

// #region capture

// capture turns a recorded trace into a fixture whose expectations are the
// events the current engine produces, with a small confidence margin.
func capture(path string, label eval.Label, mode profile.Mode, out string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer file.Close()

	readings := make(chan source.Reading, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(readings)
		_, err := source.ReadJSONLines(context.Background(), file, readings)
		errc <- err
	}()

	f := &replay.Fixture{
		Description: fmt.Sprintf("captured from %s", filepath.Base(path)),
		Mode:        string(mode),
		Label:       label,
	}
	first := true
	origin := replay.Epoch
	for rd := range readings {
		if first {
			origin = rd.Sample.Timestamp
			first = false
		}
		f.Samples = append(f.Samples, replay.FromSample(rd.Sample, origin))
	}
	if err := <-errc; err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	if err := f.Validate(); err != nil {
		return err
	}

	r := replay.Run(f)
	f.ExpectedEvents = make([]replay.FixtureExpectedEvent, 0, len(r.Events))
	for _, ev := range r.Events {
		floor := math.Floor((ev.Confidence-0.05)*100) / 100
		f.ExpectedEvents = append(f.ExpectedEvents, replay.FixtureExpectedEvent{MinConfidence: math.Max(0, floor)})
	}
	fmt.Printf("Captured %d samples, %d events under %s\n", len(f.Samples), len(r.Events), r.Mode)
	return write(f, out)
}

// #endregion capture

func write(f *replay.Fixture, path string) error {
	var buf bytes.Buffer
	if err := replay.WriteFixture(&buf, f); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("Wrote fixture to %s (%d bytes, %d samples)\n", path, buf.Len(), len(f.Samples))
	return nil
}
