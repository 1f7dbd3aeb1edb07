// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/facebookincubator/chipsauto/cmds/plugins"
	"github.com/facebookincubator/chipsauto/pkg/config"
	"github.com/facebookincubator/chipsauto/pkg/journal"
	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/materialize"
	"github.com/facebookincubator/chipsauto/pkg/metrics"
	"github.com/facebookincubator/chipsauto/pkg/orchestrator"
	"github.com/facebookincubator/chipsauto/pkg/remote"
	"github.com/facebookincubator/chipsauto/pkg/shell"
	"github.com/facebookincubator/chipsauto/pkg/stage"
	"github.com/facebookincubator/chipsauto/pkg/stager"
	"github.com/facebookincubator/chipsauto/pkg/upload"
	"github.com/facebookincubator/chipsauto/plugins/compute/gce"
	"github.com/facebookincubator/chipsauto/plugins/objstore/gsutil"
)

var log = logging.GetLogger("cli")

// ErrUsage is returned when the command line is incomplete or invalid.
var ErrUsage = errors.New("invalid usage")

var (
	flagSet              *flag.FlagSet
	flagConfig           *string
	flagUser             *string
	flagKeyFile          *string
	flagTemplate         *string
	flagOutputDir        *string
	flagMode             *string
	flagDestBucket       *string
	flagUpload           *string
	flagWorkers          *int
	flagPolicy           *string
	flagVerify           *bool
	flagCleanupOnFailure *bool
	flagConnectTimeout   *time.Duration
	flagJournal          *string
	flagMetricsFile      *string
	flagLogLevel         *string
	flagObjectStore      *string
)

func initFlags(cmd string) {
	flagSet = flag.NewFlagSet(cmd, flag.ContinueOnError)
	flagConfig = flagSet.StringP("config", "c", "", "Job description YAML file")
	flagUser = flagSet.StringP("user", "u", "", "Account name on the instance, e.g. taing")
	flagKeyFile = flagSet.StringP("key_file", "k", "", "Private key used to log into the instance, e.g. ~/.ssh/google_compute_engine")
	flagTemplate = flagSet.String("template", materialize.DefaultTemplate, "Run configuration template")
	flagOutputDir = flagSet.String("output-dir", ".", "Directory receiving the generated config and metasheet")
	flagMode = flagSet.String("mode", stager.Instance.String(), "Where input data is staged: local (instance disk) or bucket")
	flagDestBucket = flagSet.String("dest-bucket", "", "Destination of bucket staging, defaults to the job's google_bucket_path")
	flagUpload = flagSet.String("upload", upload.MethodSFTP, "Upload method: sftp or scp")
	flagWorkers = flagSet.Int("workers", config.StageWorkers, "Number of concurrent file copies while staging, 1 copies sequentially")
	flagPolicy = flagSet.String("policy", stage.Continue.String(), "What to do when a stage reports failures: continue, halt or confirm")
	flagVerify = flagSet.Bool("verify", false, "Check that every staged file exists before going on")
	flagCleanupOnFailure = flagSet.Bool("cleanup-on-failure", false, "Delete the created instance and disks if the run fails")
	flagConnectTimeout = flagSet.Duration("connect-timeout", config.ConnectBudget, "How long to wait for the instance to accept SSH connections")
	flagJournal = flagSet.String("journal", "", "SQLite file recording every run, disabled when empty")
	flagMetricsFile = flagSet.String("metrics-file", "", "Write run metrics in Prometheus text format to this file")
	flagLogLevel = flagSet.String("log-level", "info", "A log level, possible values: debug, info, warning, error")
	flagObjectStore = flagSet.String("object-store", gsutil.Name, fmt.Sprintf("Object store backend used for validation and bucket staging: %v", plugins.ObjectStores()))

	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(),
			`Usage:

  %s -c <job.yaml> -u <user> -k <key file> [flags]

Creates an instance with its disks, stages the job's samples onto it,
uploads the run configuration and starts the pipeline.

Flags:
`, cmd)
		flagSet.PrintDefaults()
	}
}

func usageError(format string, args ...interface{}) error {
	fmt.Fprintf(flagSet.Output(), "Error: "+format+"\n\n", args...)
	flagSet.Usage()
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrUsage}, args...)...)
}

// CLIMain parses args and runs one job. stdin and stdout are used by the
// confirm policy.
func CLIMain(ctx context.Context, cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	initFlags(cmd)
	flagSet.SetOutput(stdout)
	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *flagConfig == "" {
		return usageError("missing yaml job description")
	}
	if _, err := os.Stat(*flagConfig); err != nil {
		return usageError("non-existent yaml job description %s", *flagConfig)
	}
	if *flagUser == "" || *flagKeyFile == "" {
		return usageError("missing user or key file")
	}
	opts, err := options()
	if err != nil {
		return usageError("%v", err)
	}
	opts.PolicyIn, opts.PolicyOut = stdin, stdout
	if err := logging.SetLevel(*flagLogLevel); err != nil {
		return usageError("%v", err)
	}

	exec := shell.Local{}
	store, err := plugins.ObjectStore(*flagObjectStore, exec)
	if err != nil {
		return err
	}
	doc, err := config.Load(*flagConfig)
	if err != nil {
		return err
	}
	log.Infof("checking %s", *flagConfig)
	job, err := config.Validate(ctx, doc, store)
	if err != nil {
		return err
	}

	provider, err := plugins.Compute(ctx, gce.Name, job.Project, job.Zone, exec)
	if err != nil {
		return err
	}
	deps := orchestrator.Deps{
		Provider: provider,
		Store:    store,
		Exec:     exec,
	}
	if *flagJournal != "" {
		j, err := journal.Open(*flagJournal, nil)
		if err != nil {
			return err
		}
		defer j.Close()
		deps.Journal = j
	}
	if *flagMetricsFile != "" {
		deps.Metrics = metrics.New()
		defer func() {
			if err := deps.Metrics.WriteFile(*flagMetricsFile); err != nil {
				log.Warningf("cannot write metrics: %v", err)
			}
		}()
	}

	summary, err := orchestrator.New(opts, deps).Run(ctx, job)
	printSummary(stdout, summary)
	return err
}

func options() (orchestrator.Options, error) {
	mode, err := stager.ParseMode(*flagMode)
	if err != nil {
		return orchestrator.Options{}, err
	}
	policy, err := stage.ParsePolicy(*flagPolicy)
	if err != nil {
		return orchestrator.Options{}, err
	}
	switch *flagUpload {
	case upload.MethodSFTP, upload.MethodSCP:
	default:
		return orchestrator.Options{}, fmt.Errorf("unknown upload method '%s', must be sftp or scp", *flagUpload)
	}
	if *flagWorkers < 1 {
		return orchestrator.Options{}, fmt.Errorf("--workers must be at least 1")
	}
	backoff := remote.DefaultBackoff()
	backoff.Budget = *flagConnectTimeout
	return orchestrator.Options{
		User:             *flagUser,
		KeyFile:          *flagKeyFile,
		Mode:             mode,
		DestBucket:       *flagDestBucket,
		Workers:          *flagWorkers,
		Verify:           *flagVerify,
		Upload:           *flagUpload,
		Policy:           policy,
		CleanupOnFailure: *flagCleanupOnFailure,
		Backoff:          backoff,
		TemplatePath:     *flagTemplate,
		OutputDir:        *flagOutputDir,
	}, nil
}

func printSummary(w io.Writer, s *orchestrator.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "run %s\n", s.RunID)
	for _, r := range s.Reports {
		fmt.Fprintf(w, "  %s\n", r)
		for _, o := range r.Failed() {
			fmt.Fprintf(w, "    %s: %v\n", o.Item, o.Err)
		}
	}
	if s.Resource != nil && s.Launched {
		fmt.Fprintf(w, "The instance %s is running at %s, please log into it to check on the run\n", s.Resource.InstanceName, s.Resource.Address)
	}
}
