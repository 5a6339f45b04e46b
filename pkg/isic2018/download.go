// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package isic2018

import (
	"path/filepath"

	"github.com/gomlx/isic2018/pkg/support/downloader"
	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// DownloadBaseURL is where the ISIC 2018 challenge archives are hosted, one zip file per role directory.
var DownloadBaseURL = "https://isic-challenge-data.s3.amazonaws.com/2018"

// ArchiveURL returns the URL of the zip file with the role directory.
func ArchiveURL(role Role) string {
	return DownloadBaseURL + "/" + role.Dir() + ".zip"
}

// Download the zip archives of the given roles (all roles if none is given) into dataDir, and unzip them.
//
// Roles whose directory already exists in dataDir are skipped, and archives already downloaded are not
// downloaded again. The archives are large (the training input alone is >10GB).
func Download(dataDir string, showProgressBar bool, roles ...Role) error {
	dataDir, err := fsutil.ReplaceTildeInDir(dataDir)
	if err != nil {
		return err
	}
	if err = fsutil.EnsureDir(dataDir); err != nil {
		return err
	}
	if len(roles) == 0 {
		roles = AllRoles
	}
	for _, role := range roles {
		if role.Dir() == "" {
			return errors.Errorf("unknown role %s", role)
		}
		zipFile := filepath.Join(dataDir, role.Dir()+".zip")
		targetDir := filepath.Join(dataDir, role.Dir())
		err = downloader.DownloadAndUnzipIfMissing(ArchiveURL(role), zipFile, dataDir, targetDir, "", showProgressBar)
		if err != nil {
			return errors.WithMessagef(err, "downloading %s", role)
		}
	}
	return nil
}
