// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package config

import "time"

// Defaults applied to optional job description keys.
var (
	DefaultProject        = "cidc-biofx"
	DefaultZone           = "us-east1-b"
	DefaultServiceAccount = "biofxvm@cidc-biofx.iam.gserviceaccount.com"
	DefaultImage          = "chips-ver1-7a"
	DefaultImageFamily    = "chips"
	DefaultRefSnapshot    = "chips-ref-ver1-0"
	DefaultSentieon       = "/home/taing/sentieon/sentieon-genomics-201808.05/bin/sentieon"
	DefaultGenesToPlot    = "GAPDH ACTB TP53"
	DefaultUpstream       = "50000"
	DefaultDownstream     = "50000"
	DefaultWorkingDir     = "/mnt/ssd/chips"
	DefaultSetupScript    = "/home/taing/utils/chips_automator.sh"
	DefaultRunScript      = "/home/taing/utils/chips_automator_run_local.sh"
)

// InstancePrefix is prepended to the declared instance name.
var InstancePrefix = "chips-auto"

// DataSubDir is the directory, relative to the working directory, where
// input files are staged.
var DataSubDir = "data"

// StageWorkers is the default number of concurrent file copies while
// staging input data.
var StageWorkers = 4

// ExistenceCheckWorkers bounds the number of concurrent object-storage
// existence checks performed during validation.
var ExistenceCheckWorkers = 8

// ConnectBudget is the maximum amount of time spent waiting for a freshly
// created instance to accept SSH connections.
var ConnectBudget = 5 * time.Minute

// ConnectInitialBackoff is the delay before the second connection attempt.
// Each following delay doubles up to ConnectMaxBackoff.
var ConnectInitialBackoff = 2 * time.Second

// ConnectMaxBackoff caps the delay between two connection attempts.
var ConnectMaxBackoff = 30 * time.Second

// SSHHandshakeTimeout bounds a single TCP connect plus SSH handshake.
var SSHHandshakeTimeout = 20 * time.Second

// CleanupTimeout bounds the deletion of resources after a failed run.
var CleanupTimeout = 10 * time.Minute
