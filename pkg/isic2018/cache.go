// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package isic2018

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/core/ndarray/npy"
	"github.com/gomlx/isic2018/pkg/partition"
	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/gomlx/isic2018/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Prefixes of the snapshot files in the cache directory.
const (
	TrainingImagesPrefix   = "task12_images"
	ValidationImagesPrefix = "task12_validation_images"
	TestImagesPrefix       = "task12_test_images"
	TrainingMasksPrefix    = "task1_masks"

	// SizesSuffix is appended to the prefix of the snapshot holding the original sizes of the images.
	SizesSuffix = "_sizes"
)

// snapshotPrefixes maps the snapshot prefixes to the role of the images they hold.
var snapshotPrefixes = map[string]Role{
	TrainingImagesPrefix:   TrainingInput,
	ValidationImagesPrefix: ValidationInput,
	TestImagesPrefix:       TestInput,
	TrainingMasksPrefix:    TrainingGroundTruth,
}

// Cache of the decoded (and optionally resized) images of the ISIC 2018 dataset, stored as .npy snapshots.
//
// A snapshot is keyed by role and output size only: if the file exists it is taken as valid, even if the
// source images changed since it was written. Use Clear (or delete the files) to force it to be rebuilt.
//
// Concurrent calls for the same missing snapshot will each build it, and the last one to finish
// replaces the file.
type Cache struct {
	catalog  *Catalog
	cacheDir string
	options  LoadOptions
}

// NewCache creates a Cache for the data in config.DataDir, storing snapshots in config.CacheDir, which is
// created if it doesn't exist.
func NewCache(config Config) (*Cache, error) {
	config, err := config.expanded()
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(config.DataDir)
	if err != nil {
		return nil, err
	}
	if err = fsutil.EnsureDir(config.CacheDir); err != nil {
		return nil, errors.WithMessage(err, "creating cache directory")
	}
	return &Cache{
		catalog:  catalog,
		cacheDir: config.CacheDir,
		options:  LoadOptions{Verbose: config.Verbose, Parallelism: config.Parallelism},
	}, nil
}

// Catalog of the image identifiers used by the cache.
func (c *Cache) Catalog() *Catalog { return c.catalog }

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.cacheDir }

// SnapshotPath returns the path of the snapshot for the prefix and outputSize. An outputSize of 0 (native
// resolution) has no size suffix.
func (c *Cache) SnapshotPath(prefix string, outputSize int) string {
	name := prefix
	if outputSize > 0 {
		name = fmt.Sprintf("%s_%d", prefix, outputSize)
	}
	return filepath.Join(c.cacheDir, name+npy.Extension)
}

// SizesPath returns the path of the snapshot with the original sizes for the prefix.
// It doesn't depend on the output size.
func (c *Cache) SizesPath(prefix string) string {
	return filepath.Join(c.cacheDir, prefix+SizesSuffix+npy.Extension)
}

// loadOrBuild returns the images snapshot (and optionally the sizes snapshot) for the role, building it if missing.
func (c *Cache) loadOrBuild(role Role, prefix string, resolve FilenameResolver, outputSize int, withSizes bool) (
	images, sizes *ndarray.Array, err error) {
	if outputSize < 0 {
		return nil, nil, errors.Errorf("invalid outputSize %d", outputSize)
	}
	imagesPath := c.SnapshotPath(prefix, outputSize)
	sizesPath := c.SizesPath(prefix)
	hit, err := fsutil.FileExists(imagesPath)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "checking cache file for %s", role)
	}
	if hit && withSizes {
		if hit, err = fsutil.FileExists(sizesPath); err != nil {
			return nil, nil, errors.WithMessagef(err, "checking cache file for %s", role)
		}
	}
	if hit {
		klog.Infof("isic2018: loading %s from cache %q", role, imagesPath)
		if images, err = npy.Load(imagesPath); err != nil {
			return nil, nil, errors.WithMessagef(err, "attempting to read cache file for %s", role)
		}
		if withSizes {
			if sizes, err = npy.Load(sizesPath); err != nil {
				return nil, nil, errors.WithMessagef(err, "attempting to read cache file for %s", role)
			}
		}
		return images, sizes, nil
	}

	ids := c.catalog.IDs(role)
	if len(ids) == 0 {
		idsRole := role
		if role == TrainingGroundTruth {
			idsRole = TrainingInput
		}
		return nil, nil, errors.Errorf("no images found for %s in %q", role, c.catalog.RoleDir(idsRole))
	}
	imagesList, sizesList, err := LoadImages(ids, c.catalog.RoleDir(role), outputSize, resolve, c.options)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "loading %s images", role)
	}
	if images, err = ndarray.Stack(imagesList); err != nil {
		return nil, nil, errors.WithMessagef(err, "stacking %s images (use an outputSize > 0 if they have different sizes)", role)
	}
	if err = npy.Save(images, imagesPath); err != nil {
		return nil, nil, errors.WithMessagef(err, "attempting to write cache file for %s", role)
	}
	klog.Infof("isic2018: saved %s %s (%s) to %q", role, images, humanize.Bytes(uint64(images.Memory())), imagesPath)
	if withSizes {
		sizes = sizesArray(sizesList)
		if err = npy.Save(sizes, sizesPath); err != nil {
			return nil, nil, errors.WithMessagef(err, "attempting to write cache file for %s", role)
		}
	}
	return images, sizes, nil
}

// sizesArray converts the size of the first file of each image to an int64 array shaped [N, 2] of (height, width).
func sizesArray(sizes [][]Size) *ndarray.Array {
	flat := make([]int64, 0, 2*len(sizes))
	for _, imgSizes := range sizes {
		flat = append(flat, int64(imgSizes[0].Height), int64(imgSizes[0].Width))
	}
	return ndarray.MustFromFlat(flat, len(sizes), 2)
}

// LoadTrainingImages returns the training images stacked in an array shaped [N, H, W, 3], uint8.
// If outputSize > 0, H = W = outputSize.
func (c *Cache) LoadTrainingImages(outputSize int) (*ndarray.Array, error) {
	images, _, err := c.loadOrBuild(TrainingInput, TrainingImagesPrefix, JPEGFilename, outputSize, false)
	return images, err
}

// LoadValidationImages returns the validation images stacked as in LoadTrainingImages, and their
// original sizes as an int64 array shaped [N, 2] of (height, width).
func (c *Cache) LoadValidationImages(outputSize int) (images, sizes *ndarray.Array, err error) {
	return c.loadOrBuild(ValidationInput, ValidationImagesPrefix, JPEGFilename, outputSize, true)
}

// LoadTestImages returns the test images stacked as in LoadTrainingImages, and their
// original sizes as an int64 array shaped [N, 2] of (height, width).
func (c *Cache) LoadTestImages(outputSize int) (images, sizes *ndarray.Array, err error) {
	return c.loadOrBuild(TestInput, TestImagesPrefix, JPEGFilename, outputSize, true)
}

// LoadTrainingMasks returns the segmentation masks of the training images, in the same order,
// stacked in an array shaped [N, H, W], uint8.
//
// It fails with a *NotFoundError if any training image is missing its mask.
func (c *Cache) LoadTrainingMasks(outputSize int) (*ndarray.Array, error) {
	masks, _, err := c.loadOrBuild(TrainingGroundTruth, TrainingMasksPrefix, SegmentationFilename, outputSize, false)
	return masks, err
}

// LoadTrainingData loads the training images and masks, and partitions them with fold idxPartition of
// numPartitions used for validation, and testSplit of the examples held out for test.
// See partition.Data.
func (c *Cache) LoadTrainingData(outputSize, numPartitions, idxPartition int, testSplit float64) (partition.Split, error) {
	if idxPartition < 0 || idxPartition >= numPartitions {
		return partition.Split{}, errors.Errorf("invalid partition %d, it must be in [0, %d)", idxPartition, numPartitions)
	}
	images, err := c.LoadTrainingImages(outputSize)
	if err != nil {
		return partition.Split{}, err
	}
	masks, err := c.LoadTrainingMasks(outputSize)
	if err != nil {
		return partition.Split{}, err
	}
	return partition.Data(images, masks, numPartitions, idxPartition, testSplit, partition.DefaultSeed)
}

// EvaluationData holds the images of the validation or test sets, which have no ground truth.
type EvaluationData struct {
	// Images stacked in an array shaped [N, H, W, 3], uint8.
	Images *ndarray.Array

	// IDs of the images, in the same order.
	IDs []string

	// Sizes of the images before resizing, int64 array shaped [N, 2] of (height, width).
	Sizes *ndarray.Array
}

// LoadValidationData returns the validation images, with their identifiers and original sizes.
func (c *Cache) LoadValidationData(outputSize int) (*EvaluationData, error) {
	images, sizes, err := c.LoadValidationImages(outputSize)
	if err != nil {
		return nil, err
	}
	return &EvaluationData{Images: images, IDs: c.catalog.IDs(ValidationInput), Sizes: sizes}, nil
}

// LoadTestData returns the test images, with their identifiers and original sizes.
func (c *Cache) LoadTestData(outputSize int) (*EvaluationData, error) {
	images, sizes, err := c.LoadTestImages(outputSize)
	if err != nil {
		return nil, err
	}
	return &EvaluationData{Images: images, IDs: c.catalog.IDs(TestInput), Sizes: sizes}, nil
}

// SnapshotInfo describes a snapshot file in the cache directory.
type SnapshotInfo struct {
	Name   string
	Prefix string
	Role   Role

	// OutputSize of the images, 0 for native resolution.
	OutputSize int

	// IsSizes is true for the snapshot of the original image sizes.
	IsSizes bool

	// Bytes is the file size.
	Bytes int64
}

// parseSnapshotName returns the SnapshotInfo for a file name, or false if it's not a snapshot.
func parseSnapshotName(name string) (info SnapshotInfo, ok bool) {
	base, found := strings.CutSuffix(name, npy.Extension)
	if !found {
		return
	}
	for _, prefix := range xslices.SortedKeys(snapshotPrefixes) {
		role := snapshotPrefixes[prefix]
		rest, found := strings.CutPrefix(base, prefix)
		if !found {
			continue
		}
		info = SnapshotInfo{Name: name, Prefix: prefix, Role: role}
		switch {
		case rest == "":
			return info, true
		case rest == SizesSuffix:
			info.IsSizes = true
			return info, true
		case strings.HasPrefix(rest, "_"):
			size, err := strconv.Atoi(rest[1:])
			if err != nil || size <= 0 {
				continue
			}
			info.OutputSize = size
			return info, true
		}
	}
	return SnapshotInfo{}, false
}

// Snapshots lists the snapshot files in the cache directory, sorted by name.
func (c *Cache) Snapshots() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list cache directory %q", c.cacheDir)
	}
	var snapshots []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := parseSnapshotName(entry.Name())
		if !ok {
			klog.V(1).Infof("isic2018: ignoring %q in cache directory", entry.Name())
			continue
		}
		fileInfo, err := entry.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %q", entry.Name())
		}
		info.Bytes = fileInfo.Size()
		snapshots = append(snapshots, info)
	}
	slices.SortFunc(snapshots, func(a, b SnapshotInfo) int { return strings.Compare(a.Name, b.Name) })
	return snapshots, nil
}

// Clear removes the image snapshots of the given outputSize (0 for native resolution), or all
// snapshots (including the sizes) if all is true. It returns the names of the files removed.
func (c *Cache) Clear(outputSize int, all bool) ([]string, error) {
	snapshots, err := c.Snapshots()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, info := range snapshots {
		if !all && (info.IsSizes || info.OutputSize != outputSize) {
			continue
		}
		if err = os.Remove(filepath.Join(c.cacheDir, info.Name)); err != nil {
			return removed, errors.Wrapf(err, "failed to remove snapshot %q", info.Name)
		}
		klog.Infof("isic2018: removed %q", info.Name)
		removed = append(removed, info.Name)
	}
	return removed, nil
}
