// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package upload copies local files into the working directory of an
// instance. Host keys are never checked nor recorded.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/facebookincubator/chipsauto/pkg/logging"
	"github.com/facebookincubator/chipsauto/pkg/shell"
	"github.com/facebookincubator/chipsauto/pkg/stage"
)

var log = logging.GetLogger("upload")

// StageName is the name of the upload report.
const StageName = "upload"

// Names of the uploaded artifacts on the instance.
const (
	ConfigName = "config.yaml"
	SheetName  = "metasheet.csv"
)

// Upload methods.
const (
	MethodSFTP = "sftp"
	MethodSCP  = "scp"
)

// File is one local file and the name it gets on the instance.
type File struct {
	Local  string
	Remote string
}

// JobFiles returns the files every job uploads: the run configuration, the
// comparison sheet and the job description under its own base name.
func JobFiles(configPath, sheetPath, jobPath string) []File {
	return []File{
		{Local: configPath, Remote: ConfigName},
		{Local: sheetPath, Remote: SheetName},
		{Local: jobPath, Remote: filepath.Base(jobPath)},
	}
}

// Uploader copies files to the instance. Every file is attempted; the
// outcomes are in the report.
type Uploader interface {
	Upload(ctx context.Context, files []File) *stage.Report
}

// SFTP uploads over an established SSH connection.
type SFTP struct {
	Client *ssh.Client
	// Dir is the destination directory on the instance.
	Dir string
}

// Upload implements Uploader.
func (u *SFTP) Upload(ctx context.Context, files []File) *stage.Report {
	report := stage.NewReport(StageName)
	client, err := sftp.NewClient(u.Client)
	if err != nil {
		err = fmt.Errorf("cannot open sftp channel: %w", err)
		for _, f := range files {
			report.Add(f.Remote, err)
		}
		return report
	}
	defer client.Close()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			report.Add(f.Remote, err)
			continue
		}
		dst := path.Join(u.Dir, f.Remote)
		err := put(client, f.Local, dst)
		if err != nil {
			log.Errorf("cannot upload %s to %s: %v", f.Local, dst, err)
		} else {
			log.Infof("uploaded %s to %s", f.Local, dst)
		}
		report.Add(f.Remote, err)
	}
	return report
}

func put(client *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := client.Create(remote)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", remote, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("cannot write %s: %w", remote, err)
	}
	return dst.Close()
}

// SCPBinary is the scp executable used by SCP.
var SCPBinary = "scp"

// SCP uploads by running the local scp binary.
type SCP struct {
	Exec    shell.Executor
	User    string
	Host    string
	KeyFile string
	Dir     string
}

// Args returns the scp arguments that copy f.
func (u *SCP) Args(f File) []string {
	dir := u.Dir
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return []string{
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-i", u.KeyFile,
		f.Local,
		fmt.Sprintf("%s@%s:%s%s", u.User, u.Host, dir, f.Remote),
	}
}

// Upload implements Uploader.
func (u *SCP) Upload(ctx context.Context, files []File) *stage.Report {
	exec := u.Exec
	if exec == nil {
		exec = shell.Local{}
	}
	report := stage.NewReport(StageName)
	for _, f := range files {
		args := u.Args(f)
		log.Infof("%s", shell.Join(SCPBinary, args...))
		res := exec.Exec(ctx, SCPBinary, args...)
		err := res.Cause()
		if err != nil {
			log.Errorf("cannot upload %s: %v", f.Local, err)
		}
		report.Add(f.Remote, err)
	}
	return report
}
