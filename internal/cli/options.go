// internal/cli/options.go
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"igia-core/element"
	"igia/internal/version"
)

// Options holds all CLI flags and arguments.
type Options struct {
	// Output
	OutDir string

	// Evidence input
	NGSFiles []string
	TGSFiles []string

	// External input
	TSSFile    string
	TESFile    string
	AnnFile    string
	CfmAnnFile string
	GenomeFile string

	// Tuning
	Rule       string
	PIR        float64
	Dtxs       int
	TimeoutSec int

	// Performance
	Threads int

	EnvFile string
	Verbose bool
	Version bool
}

// NewFlagSet returns a configured FlagSet with custom usage/help.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`%s: integrative gene isoform assembly from sequencing-read evidence

Version: %s

Usage of %s:
`, name, version.Version, name)
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs registers and parses all flags, applies env-file defaults for
// flags the command line left untouched, and validates the result.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var opt Options
	var help bool

	fs.StringVar(&opt.OutDir, "output", "", "output directory for assembled transcripts [*]")
	fs.StringVar(&opt.OutDir, "o", "", "output directory (shorthand) [*]")

	var ngs, tgs stringSlice
	fs.Var(&ngs, "ngs", "short-read evidence TSV (repeatable) [*]")
	fs.Var(&tgs, "tgs", "long-read evidence TSV (repeatable) [*]")

	fs.StringVar(&opt.TSSFile, "tss", "", "external TSS sites (chrom<TAB>site<TAB>strand)")
	fs.StringVar(&opt.TESFile, "tes", "", "external TES sites (chrom<TAB>site<TAB>strand)")
	fs.StringVar(&opt.AnnFile, "ann", "", "assembled annotation used as extra linkage evidence")
	fs.StringVar(&opt.CfmAnnFile, "cfm-ann", "", "confirmed annotation feeding isoC classification")
	fs.StringVar(&opt.GenomeFile, "genome", "", "genome FASTA enabling canonical splice-site checks")

	fs.StringVar(&opt.Rule, "rule", element.RuleSingleEnd,
		"library strandedness rule: "+strings.Join(rules, " | ")+" ["+element.RuleSingleEnd+"]")
	fs.Float64Var(&opt.PIR, "pir", 0.5, "PIR cutoff for intron retention [0.5]")
	fs.IntVar(&opt.Dtxs, "dtxs", 500, "distance cutoff between two different TSSs/TESs [500]")
	fs.IntVar(&opt.TimeoutSec, "timeout", 0, "per-region time budget in seconds (0 = none) [0]")

	fs.IntVar(&opt.Threads, "threads", 1, "parallel region workers [1]")

	fs.StringVar(&opt.EnvFile, "env-file", "", "env file supplying IGIA_* defaults (default: ./.env if present)")
	fs.BoolVar(&opt.Verbose, "verbose", false, "set loglevel to DEBUG [false]")
	fs.BoolVar(&opt.Verbose, "v", false, "set loglevel to DEBUG (shorthand) [false]")
	fs.BoolVar(&opt.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&help, "h", false, "show this help message (shorthand) [false]")

	if err := fs.Parse(argv); err != nil {
		return opt, err
	}
	if help {
		fs.Usage()
		return opt, flag.ErrHelp
	}
	if opt.Version {
		return opt, nil
	}
	opt.NGSFiles = ngs
	opt.TGSFiles = tgs

	if err := applyEnvDefaults(fs, &opt); err != nil {
		return opt, err
	}

	// Validation
	switch {
	case opt.OutDir == "":
		return opt, errors.New("--output is required")
	case len(opt.NGSFiles) == 0:
		return opt, errors.New("at least one --ngs file is required")
	case len(opt.TGSFiles) == 0:
		return opt, errors.New("at least one --tgs file is required")
	}
	if !validRule(opt.Rule) {
		return opt, fmt.Errorf("invalid --rule %q (choose %s)", opt.Rule, strings.Join(rules, " | "))
	}
	if opt.PIR < 0 || opt.PIR > 1 {
		return opt, errors.New("--pir must be within [0, 1]")
	}
	if opt.Dtxs < 0 {
		return opt, errors.New("--dtxs must be ≥ 0")
	}
	if opt.TimeoutSec < 0 {
		return opt, errors.New("--timeout must be ≥ 0")
	}
	if opt.Threads < 0 {
		return opt, errors.New("--threads must be ≥ 0")
	}
	return opt, nil
}

var rules = []string{element.RuleFR, element.RuleRF, element.RuleSingleEnd}

func validRule(r string) bool {
	for _, v := range rules {
		if r == v {
			return true
		}
	}
	return false
}

// applyEnvDefaults loads the env file (explicit --env-file, else an optional
// ./.env) and fills IGIA_* values into flags the user did not set.
func applyEnvDefaults(fs *flag.FlagSet, opt *Options) error {
	if opt.EnvFile != "" {
		if err := godotenv.Load(opt.EnvFile); err != nil {
			return fmt.Errorf("--env-file: %w", err)
		}
	} else {
		_ = godotenv.Load() // optional ./.env
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["rule"] {
		if v := os.Getenv("IGIA_RULE"); v != "" {
			opt.Rule = v
		}
	}
	if !set["pir"] {
		if v := os.Getenv("IGIA_PIR"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("IGIA_PIR: bad value %q", v)
			}
			opt.PIR = f
		}
	}
	if !set["dtxs"] {
		if err := envInt("IGIA_DTXS", &opt.Dtxs); err != nil {
			return err
		}
	}
	if !set["timeout"] {
		if err := envInt("IGIA_TIMEOUT", &opt.TimeoutSec); err != nil {
			return err
		}
	}
	if !set["threads"] {
		if err := envInt("IGIA_THREADS", &opt.Threads); err != nil {
			return err
		}
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: bad value %q", key, v)
	}
	*dst = n
	return nil
}

// stringSlice allows repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string     { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }
