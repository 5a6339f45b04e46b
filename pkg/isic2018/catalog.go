// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package isic2018

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Role of a directory of the ISIC 2018 distribution.
type Role int

const (
	// TrainingInput holds the dermoscopic images used for training (Task 1 and 2).
	TrainingInput Role = iota

	// ValidationInput holds the images of the official validation set, without ground truth.
	ValidationInput

	// TestInput holds the images of the official test set, without ground truth.
	TestInput

	// TrainingGroundTruth holds the Task 1 segmentation masks of the training images.
	TrainingGroundTruth
)

// AllRoles lists all roles, in the order they are usually downloaded.
var AllRoles = []Role{TrainingInput, TrainingGroundTruth, ValidationInput, TestInput}

var roleDirs = map[Role]string{
	TrainingInput:       "ISIC2018_Task1-2_Training_Input",
	ValidationInput:     "ISIC2018_Task1-2_Validation_Input",
	TestInput:           "ISIC2018_Task1-2_Test_Input",
	TrainingGroundTruth: "ISIC2018_Task1_Training_GroundTruth",
}

// Dir returns the name of the directory (relative to the data directory) for the role.
func (r Role) Dir() string {
	return roleDirs[r]
}

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case TrainingInput:
		return "TrainingInput"
	case ValidationInput:
		return "ValidationInput"
	case TestInput:
		return "TestInput"
	case TrainingGroundTruth:
		return "TrainingGroundTruth"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Catalog of the image identifiers found in the data directory, per role.
//
// It is built once by NewCatalog and not changed afterward: files added to the data directory later are
// not seen until a new Catalog is created.
type Catalog struct {
	dataDir string
	ids     map[Role][]string
}

// NewCatalog scans the input directories of dataDir and records the image identifiers of each role.
//
// Identifiers are the file names starting with "ISIC" and with a ".jpg" extension (any case), without the
// extension, sorted. A missing role directory yields no identifiers, and is not an error.
func NewCatalog(dataDir string) (*Catalog, error) {
	c := &Catalog{
		dataDir: dataDir,
		ids:     make(map[Role][]string),
	}
	for _, role := range []Role{TrainingInput, ValidationInput, TestInput} {
		ids, err := scanImageIDs(c.RoleDir(role))
		if err != nil {
			return nil, err
		}
		c.ids[role] = ids
		klog.V(1).Infof("isic2018: %d images for %s in %q", len(ids), role, c.RoleDir(role))
	}
	return c, nil
}

// scanImageIDs returns the sorted identifiers of the JPEG images in dir.
func scanImageIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "failed to list images in %q", dir)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "ISIC") || !strings.HasSuffix(strings.ToLower(name), ".jpg") {
			if !entry.IsDir() && !strings.HasPrefix(name, ".") {
				klog.V(2).Infof("isic2018: skipping %q in %q", name, dir)
			}
			continue
		}
		ids = append(ids, name[:strings.LastIndexByte(name, '.')])
	}
	slices.Sort(ids)
	return ids, nil
}

// DataDir returns the data directory scanned.
func (c *Catalog) DataDir() string { return c.dataDir }

// RoleDir returns the full path of the directory for the role.
func (c *Catalog) RoleDir(role Role) string {
	return filepath.Join(c.dataDir, role.Dir())
}

// IDs returns a copy of the sorted image identifiers of the role.
// The TrainingGroundTruth role shares the identifiers of TrainingInput.
func (c *Catalog) IDs(role Role) []string {
	if role == TrainingGroundTruth {
		role = TrainingInput
	}
	return slices.Clone(c.ids[role])
}

// NumImages returns the number of images for the role.
func (c *Catalog) NumImages(role Role) int {
	if role == TrainingGroundTruth {
		role = TrainingInput
	}
	return len(c.ids[role])
}
