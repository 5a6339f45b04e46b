// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package isic2018

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/core/ndarray/npy"
	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	numTrainingImages   = 12
	numValidationImages = 3
)

// createDataset creates a small fake ISIC 2018 data directory, with images of different sizes.
func createDataset(t *testing.T) (dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	for _, role := range []Role{TrainingInput, TrainingGroundTruth, ValidationInput} {
		require.NoError(t, os.MkdirAll(filepath.Join(dataDir, role.Dir()), 0o755))
	}
	for ii := range numTrainingImages {
		id := trainingID(ii)
		width, height := 10+ii, 8+ii%3
		saveImage(t, colorImage(width, height, ii), filepath.Join(dataDir, TrainingInput.Dir(), id+".jpg"))
		mask := grayImage(width, height, func(x, y int) uint8 {
			if x > width/2 {
				return 255
			}
			return 0
		})
		saveImage(t, mask, filepath.Join(dataDir, TrainingGroundTruth.Dir(), id+"_segmentation.png"))
	}
	for ii := range numValidationImages {
		saveImage(t, colorImage(20+ii, 15, ii), filepath.Join(dataDir, ValidationInput.Dir(), validationID(ii)+".jpg"))
	}
	return dataDir
}

func trainingID(ii int) string {
	return "ISIC_00000" + string(rune('a'+ii))
}

func validationID(ii int) string {
	return "ISIC_10000" + string(rune('a'+ii))
}

func newTestCache(t *testing.T, dataDir string) *Cache {
	t.Helper()
	cache, err := NewCache(Config{DataDir: dataDir, CacheDir: filepath.Join(t.TempDir(), "cache")})
	require.NoError(t, err)
	require.True(t, fsutil.MustFileExists(cache.Dir()))
	return cache
}

func TestCacheTrainingImages(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)
	assert.Equal(t, numTrainingImages, cache.Catalog().NumImages(TrainingInput))

	snapshotPath := cache.SnapshotPath(TrainingImagesPrefix, 8)
	assert.Equal(t, "task12_images_8.npy", filepath.Base(snapshotPath))
	assert.False(t, fsutil.MustFileExists(snapshotPath))

	// Cold: builds and saves the snapshot.
	cold, err := cache.LoadTrainingImages(8)
	require.NoError(t, err)
	assert.Equal(t, []int{numTrainingImages, 8, 8, 3}, cold.Dimensions())
	assert.True(t, fsutil.MustFileExists(snapshotPath))

	// Warm: same contents.
	warm, err := cache.LoadTrainingImages(8)
	require.NoError(t, err)
	assert.True(t, cold.Equal(warm))

	// Presence implies validity: the snapshot is used even after the source images are gone.
	require.NoError(t, os.RemoveAll(filepath.Join(dataDir, TrainingInput.Dir())))
	stale, err := cache.LoadTrainingImages(8)
	require.NoError(t, err)
	assert.True(t, cold.Equal(stale))

	// But a different resolution is a miss, and there are no sources left.
	_, err = cache.LoadTrainingImages(4)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

// npyWithHeader returns a .npy v1.0 file with the given header dictionary and raw data.
func npyWithHeader(header string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(npy.Magic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestCacheCorruptSnapshot(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)
	snapshotPath := cache.SnapshotPath(TrainingImagesPrefix, 8)
	_, err := cache.LoadTrainingImages(8)
	require.NoError(t, err)

	// Truncated snapshot.
	info, err := os.Stat(snapshotPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(snapshotPath, info.Size()/2))
	_, err = cache.LoadTrainingImages(8)
	require.ErrorContains(t, err, "cache file")

	// Header with a shape far larger than the file.
	contents := npyWithHeader("{'descr': '|u1', 'fortran_order': False, 'shape': (100000000000000,), }\n", []byte{1, 2, 3})
	require.NoError(t, os.WriteFile(snapshotPath, contents, 0o644))
	_, err = cache.LoadTrainingImages(8)
	require.Error(t, err)

	// Header whose number of elements overflows.
	contents = npyWithHeader("{'descr': '|u1', 'fortran_order': False, 'shape': (4611686018427387904, 4), }\n", nil)
	require.NoError(t, os.WriteFile(snapshotPath, contents, 0o644))
	_, err = cache.LoadTrainingImages(8)
	require.ErrorContains(t, err, "overflow")
}

func TestCacheDirNotADirectory(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)

	// Stat errors other than "not found" are returned, not treated as a miss.
	require.NoError(t, os.RemoveAll(cache.Dir()))
	require.NoError(t, os.WriteFile(cache.Dir(), []byte("not a directory"), 0o644))
	_, err := cache.LoadTrainingImages(8)
	require.ErrorContains(t, err, "checking cache file")
	_, err = cache.LoadValidationData(8)
	require.ErrorContains(t, err, "checking cache file")
}

func TestCacheNativeResolution(t *testing.T) {
	dataDir := t.TempDir()
	dir := filepath.Join(dataDir, TrainingInput.Dir())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for ii := range 3 {
		saveImage(t, colorImage(6, 4, ii), filepath.Join(dir, trainingID(ii)+".jpg"))
	}
	cache := newTestCache(t, dataDir)
	images, err := cache.LoadTrainingImages(0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 6, 3}, images.Dimensions())
	assert.True(t, fsutil.MustFileExists(filepath.Join(cache.Dir(), "task12_images.npy")))

	// Images of different native sizes can't be stacked.
	saveImage(t, colorImage(7, 4, 0), filepath.Join(dir, trainingID(4)+".jpg"))
	cache = newTestCache(t, dataDir)
	_, err = cache.LoadTrainingImages(0)
	require.Error(t, err)
	assert.False(t, fsutil.MustFileExists(filepath.Join(cache.Dir(), "task12_images.npy")))
}

func TestCacheTrainingMasks(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)
	masks, err := cache.LoadTrainingMasks(8)
	require.NoError(t, err)
	assert.Equal(t, []int{numTrainingImages, 8, 8}, masks.Dimensions())
	// Left edge is background, right edge is lesion.
	first := ndarray.MustFlat[uint8](masks.Example(0))
	assert.Equal(t, uint8(0), first[0])
	assert.Equal(t, uint8(255), first[7])
	assert.True(t, fsutil.MustFileExists(filepath.Join(cache.Dir(), "task1_masks_8.npy")))
}

func TestCacheMissingMask(t *testing.T) {
	dataDir := createDataset(t)
	require.NoError(t, os.Remove(filepath.Join(dataDir, TrainingGroundTruth.Dir(), trainingID(5)+"_segmentation.png")))
	cache := newTestCache(t, dataDir)
	_, err := cache.LoadTrainingMasks(8)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, fsutil.MustFileExists(cache.SnapshotPath(TrainingMasksPrefix, 8)))

	_, err = cache.LoadTrainingData(8, 5, 0, 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCacheTrainingData(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)

	// 12 examples, 5 folds: 2 per fold, and 2 for test.
	split, err := cache.LoadTrainingData(8, 5, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, split.Train.Len())
	assert.Equal(t, 2, split.Validation.Len())
	assert.Equal(t, 2, split.Test.Len())
	assert.Equal(t, []int{2, 8, 8, 3}, split.Validation.X.Dimensions())
	assert.Equal(t, []int{2, 8, 8}, split.Validation.Y.Dimensions())

	// Deterministic, also when read from the cache.
	again, err := cache.LoadTrainingData(8, 5, 1, 0)
	require.NoError(t, err)
	assert.True(t, split.Validation.X.Equal(again.Validation.X))
	assert.True(t, split.Test.Y.Equal(again.Test.Y))

	_, err = cache.LoadTrainingData(8, 5, 5, 0)
	require.Error(t, err)
}

func TestCacheValidationData(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)
	data, err := cache.LoadValidationData(16)
	require.NoError(t, err)
	assert.Equal(t, []int{numValidationImages, 16, 16, 3}, data.Images.Dimensions())
	assert.Equal(t, []string{validationID(0), validationID(1), validationID(2)}, data.IDs)
	assert.Equal(t, []int{numValidationImages, 2}, data.Sizes.Dimensions())
	assert.Equal(t, []int64{15, 20, 15, 21, 15, 22}, ndarray.MustFlat[int64](data.Sizes))
	assert.True(t, fsutil.MustFileExists(filepath.Join(cache.Dir(), "task12_validation_images_16.npy")))
	assert.True(t, fsutil.MustFileExists(filepath.Join(cache.Dir(), "task12_validation_images_sizes.npy")))

	// Both files are required for a hit: without the sizes it is rebuilt.
	require.NoError(t, os.Remove(cache.SizesPath(ValidationImagesPrefix)))
	rebuilt, err := cache.LoadValidationData(16)
	require.NoError(t, err)
	assert.True(t, data.Images.Equal(rebuilt.Images))
	assert.True(t, data.Sizes.Equal(rebuilt.Sizes))

	// No test images in the data directory.
	_, err = cache.LoadTestData(16)
	require.Error(t, err)
}

func TestCacheSnapshotsAndClear(t *testing.T) {
	dataDir := createDataset(t)
	cache := newTestCache(t, dataDir)
	_, err := cache.LoadTrainingImages(4)
	require.NoError(t, err)
	_, err = cache.LoadTrainingImages(8)
	require.NoError(t, err)
	_, err = cache.LoadValidationData(8)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cache.Dir(), "notes.txt"), []byte("x"), 0o644))

	snapshots, err := cache.Snapshots()
	require.NoError(t, err)
	var names []string
	for _, s := range snapshots {
		names = append(names, s.Name)
		assert.Positive(t, s.Bytes)
	}
	assert.Equal(t, []string{"task12_images_4.npy", "task12_images_8.npy",
		"task12_validation_images_8.npy", "task12_validation_images_sizes.npy"}, names)
	assert.Equal(t, 4, snapshots[0].OutputSize)
	assert.Equal(t, ValidationInput, snapshots[3].Role)
	assert.True(t, snapshots[3].IsSizes)

	removed, err := cache.Clear(8, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"task12_images_8.npy", "task12_validation_images_8.npy"}, removed)

	removed, err = cache.Clear(0, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"task12_images_4.npy", "task12_validation_images_sizes.npy"}, removed)
	snapshots, err = cache.Snapshots()
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestParseSnapshotName(t *testing.T) {
	info, ok := parseSnapshotName("task1_masks_128.npy")
	require.True(t, ok)
	assert.Equal(t, TrainingMasksPrefix, info.Prefix)
	assert.Equal(t, TrainingGroundTruth, info.Role)
	assert.Equal(t, 128, info.OutputSize)

	info, ok = parseSnapshotName("task12_test_images.npy")
	require.True(t, ok)
	assert.Equal(t, TestInput, info.Role)
	assert.Zero(t, info.OutputSize)
	assert.False(t, info.IsSizes)

	for _, name := range []string{"task12_images_x.npy", "task12_images_0.npy", "other.npy", "task1_masks_64.bin"} {
		_, ok = parseSnapshotName(name)
		assert.Falsef(t, ok, "%q should not be a snapshot", name)
	}
}

func TestCatalog(t *testing.T) {
	dataDir := t.TempDir()
	dir := filepath.Join(dataDir, TrainingInput.Dir())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ISIC_subdir.jpg"), 0o755))
	for _, name := range []string{"ISIC_0000002.jpg", "ISIC_0000001.JPG", "notes.txt", "ISIC_0000003.png",
		"image_0000004.jpg", "ATTRIBUTION.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{}, 0o644))
	}
	catalog, err := NewCatalog(dataDir)
	require.NoError(t, err)
	assert.Equal(t, dataDir, catalog.DataDir())
	// Directories matching the pattern are also listed, as they are in a plain directory scan.
	assert.Equal(t, []string{"ISIC_0000001", "ISIC_0000002", "ISIC_subdir"}, catalog.IDs(TrainingInput))
	assert.Equal(t, catalog.IDs(TrainingInput), catalog.IDs(TrainingGroundTruth))
	assert.Empty(t, catalog.IDs(ValidationInput))
	assert.Zero(t, catalog.NumImages(TestInput))

	// IDs returns a copy.
	ids := catalog.IDs(TrainingInput)
	ids[0] = "changed"
	assert.Equal(t, "ISIC_0000001", catalog.IDs(TrainingInput)[0])
}

func TestRole(t *testing.T) {
	assert.Equal(t, "ISIC2018_Task1_Training_GroundTruth", TrainingGroundTruth.Dir())
	assert.Equal(t, "ValidationInput", ValidationInput.String())
	assert.Equal(t, "Role(9)", Role(9).String())
	assert.Equal(t, "https://isic-challenge-data.s3.amazonaws.com/2018/ISIC2018_Task1-2_Test_Input.zip",
		ArchiveURL(TestInput))
}
