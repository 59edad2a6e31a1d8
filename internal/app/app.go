// internal/app/app.go
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"igia-core/annotation"
	"igia-core/element"
	"igia-core/evidence"
	"igia-core/fasta"
	"igia-core/linkage"
	"igia-core/transcript"
	"igia/internal/cli"
	"igia/internal/common"
	"igia/internal/logging"
	"igia/internal/output"
	"igia/internal/scheduler"
	"igia/internal/version"
)

// RunContext wires the whole run: CLI → evidence/annotation loading →
// linkage → region scheduling into the output multiplexer.
//
// Exit codes: 0 ok, 2 usage or input loading, 3 fatal runtime error,
// 130 cancelled. Region timeouts are logged and never change the code.
func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := cli.NewFlagSet("igia")
	fs.SetOutput(io.Discard)

	opts, err := cli.ParseArgs(fs, argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(stdout)
			fs.Usage()
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err)
		fs.SetOutput(stderr)
		fs.Usage()
		return 2
	}
	if opts.Version {
		_, _ = fmt.Fprintf(stdout, "igia version %s\n", version.Version)
		return 0
	}

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	if err := logging.Init(level); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 3
	}
	defer func() { _ = logging.Sync() }()

	runID := uuid.NewString()
	logging.Info("starting igia",
		zap.String("run", runID), zap.String("version", version.Version))

	ngs := make([]*evidence.Source, 0, len(opts.NGSFiles))
	for _, p := range opts.NGSFiles {
		ngs = append(ngs, evidence.NewSource(p, evidence.NGS))
	}
	tgs := make([]*evidence.Source, 0, len(opts.TGSFiles))
	for _, p := range opts.TGSFiles {
		tgs = append(tgs, evidence.NewSource(p, evidence.TGS))
	}

	var tss, tes *annotation.SiteList
	if opts.TSSFile != "" {
		if tss, err = annotation.LoadSites(opts.TSSFile); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
		tss.Dedupe(opts.Dtxs)
	}
	if opts.TESFile != "" {
		if tes, err = annotation.LoadSites(opts.TESFile); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
		tes.Dedupe(opts.Dtxs)
	}
	var genome fasta.Genome
	if opts.GenomeFile != "" {
		if genome, err = fasta.Load(opts.GenomeFile); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
	}
	var ann, cfm *evidence.Source
	if opts.AnnFile != "" {
		ann = evidence.NewSource(opts.AnnFile, evidence.ANN)
	}
	if opts.CfmAnnFile != "" {
		cfm = evidence.NewSource(opts.CfmAnnFile, evidence.ANN)
	}

	elemCfg := element.Config{
		Rule:      opts.Rule,
		TxsDiff:   opts.Dtxs,
		PIRCutoff: opts.PIR,
		NGS:       ngs,
		TGS:       tgs,
		Ann:       ann,
		TSS:       tss,
		TES:       tes,
		Genome:    genome,
	}

	linkSources := make([]*evidence.Source, 0, len(ngs)+len(tgs)+1)
	linkSources = append(linkSources, ngs...)
	linkSources = append(linkSources, tgs...)
	if ann != nil {
		linkSources = append(linkSources, ann)
	}

	logging.Info("start building linkage", zap.String("run", runID))
	link, err := linkage.Build(parent, linkSources)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 3
	}
	logging.Info("finish building linkage",
		zap.String("run", runID), zap.Int("regions", link.Len()))

	out, err := output.Open(opts.OutDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 3
	}
	// Streams must be released on every exit path; Close is idempotent so
	// the explicit close below can still surface flush errors.
	defer func() { _ = out.Close() }()

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	var ids common.ClusterNumberer
	sched := scheduler.New(
		scheduler.Options{
			Deadline: time.Duration(opts.TimeoutSec) * time.Second,
			Threads:  threads,
		},
		&ids,
		out,
		element.New(elemCfg),
		transcript.New(transcript.Config{Cfm: cfm}),
	)

	perr := sched.Process(parent, link.ForEach)
	perr = multierr.Append(perr, out.Close())

	if perr != nil {
		if errors.Is(perr, context.Canceled) {
			return 130
		}
		_, _ = fmt.Fprintln(stderr, perr)
		return 3
	}

	logging.Info("end",
		zap.String("run", runID), zap.Int64("clusters", ids.Count()))
	return 0
}

// Run is the background-context wrapper used by tests.
func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}
