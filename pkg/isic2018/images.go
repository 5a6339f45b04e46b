// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package isic2018

import (
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gomlx/isic2018/internal/workerspool"
	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/gomlx/isic2018/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Size of an image, in pixels, before any resizing.
type Size struct {
	Height, Width int
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Height, s.Width)
}

// NotFoundError is returned when a source image file doesn't exist.
//
// It matches errors.Is(err, fs.ErrNotExist).
type NotFoundError struct {
	Path string
}

// Error implements error.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %q not found", e.Path)
}

// Is allows errors.Is(err, fs.ErrNotExist) to match.
func (e *NotFoundError) Is(target error) bool {
	return target == fs.ErrNotExist
}

// FilenameResolver returns the file names, relative to the source directory, that compose the image
// with the given identifier. More than one file name yields a multichannel image, one channel per file.
type FilenameResolver func(id string) []string

// JPEGFilename resolves to "<id>.jpg", the input images.
func JPEGFilename(id string) []string {
	return []string{id + ".jpg"}
}

// SegmentationFilename resolves to "<id>_segmentation.png", the Task 1 ground truth masks.
func SegmentationFilename(id string) []string {
	return []string{id + "_segmentation.png"}
}

// MultiChannelFilenames returns a resolver to "<id><suffix>" for each suffix, used for masks
// split in one file per channel.
func MultiChannelFilenames(suffixes ...string) FilenameResolver {
	return func(id string) []string {
		return xslices.Map(suffixes, func(suffix string) string { return id + suffix })
	}
}

// numChannels returns the number of channels the decoded image holds: 1 for grayscale, 4 if it may have
// transparency or 3 otherwise.
func numChannels(img image.Image) int {
	switch img := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.NRGBA64:
		return 4
	case *image.Paletted:
		for _, c := range img.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	case *image.Alpha, *image.Alpha16:
		return 4
	}
	if img.ColorModel() == color.GrayModel || img.ColorModel() == color.Gray16Model {
		return 1
	}
	return 3
}

// toArray converts the image to a uint8 array shaped [H, W] (1 channel) or [H, W, C].
func toArray(img *image.NRGBA, channels int) *ndarray.Array {
	bounds := img.Bounds()
	height, width := bounds.Dy(), bounds.Dx()
	flat := make([]uint8, 0, height*width*channels)
	for y := range height {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := range width {
			pixel := row[x*4 : x*4+4]
			if channels == 1 {
				flat = append(flat, pixel[0])
			} else {
				flat = append(flat, pixel[:channels]...)
			}
		}
	}
	if channels == 1 {
		return ndarray.MustFromFlat(flat, height, width)
	}
	return ndarray.MustFromFlat(flat, height, width, channels)
}

// decodeAndResize reads an image file and, if outputSize > 0, resizes it to outputSize x outputSize.
// It returns the uint8 array and the size of the image before resizing.
func decodeAndResize(filePath string, outputSize int) (*ndarray.Array, Size, error) {
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return nil, Size{}, err
	}
	if !exists {
		return nil, Size{}, &NotFoundError{Path: filePath}
	}
	img, err := imaging.Open(filePath)
	if err != nil {
		return nil, Size{}, errors.Wrapf(err, "failed to decode image %q", filePath)
	}
	bounds := img.Bounds()
	size := Size{Height: bounds.Dy(), Width: bounds.Dx()}
	channels := numChannels(img)
	var nrgba *image.NRGBA
	if outputSize > 0 {
		// Linear filter, with support scaled to the reduction factor: it anti-aliases when downsampling.
		nrgba = imaging.Resize(img, outputSize, outputSize, imaging.Linear)
	} else {
		nrgba = imaging.Clone(img)
	}
	return toArray(nrgba, channels), size, nil
}

// LoadImageByID loads the image identified by id from sourceDir, using resolve to find its file names.
//
// If outputSize > 0 the image is resized to outputSize x outputSize, otherwise it is kept at its native
// resolution. Images are returned as uint8 arrays shaped [H, W] for grayscale and [H, W, C] otherwise.
// If resolve returns more than one file name, each is loaded as above and they are stacked on a new
// last axis.
//
// It returns the sizes before resizing of each file loaded. If a file doesn't exist it returns a *NotFoundError.
func LoadImageByID(id string, resolve FilenameResolver, sourceDir string, outputSize int) (*ndarray.Array, []Size, error) {
	if outputSize < 0 {
		return nil, nil, errors.Errorf("invalid outputSize %d for image %q", outputSize, id)
	}
	fileNames := resolve(id)
	if len(fileNames) == 0 {
		return nil, nil, errors.Errorf("no file names for image %q", id)
	}
	images := make([]*ndarray.Array, 0, len(fileNames))
	sizes := make([]Size, 0, len(fileNames))
	for _, fileName := range fileNames {
		img, size, err := decodeAndResize(filepath.Join(sourceDir, fileName), outputSize)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
		sizes = append(sizes, size)
	}
	if len(images) == 1 {
		return images[0], sizes, nil
	}
	img, err := ndarray.StackLast(images)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "stacking channels of image %q", id)
	}
	return img, sizes, nil
}

// LoadOptions configure LoadImages.
type LoadOptions struct {
	// Verbose displays a progress bar.
	Verbose bool

	// Parallelism is the number of images decoded in parallel. 0 decodes sequentially, and a
	// negative value uses the number of CPUs.
	Parallelism int
}

// LoadImages loads all images in ids, in order, with LoadImageByID.
//
// Either all images are loaded, or the first failure (in ids order) is returned.
func LoadImages(ids []string, sourceDir string, outputSize int, resolve FilenameResolver, opts LoadOptions) (
	[]*ndarray.Array, [][]Size, error) {
	klog.Infof("isic2018: loading %d images from %q", len(ids), sourceDir)
	images := make([]*ndarray.Array, len(ids))
	sizes := make([][]Size, len(ids))
	var bar *progressbar.ProgressBar
	if opts.Verbose {
		bar = progressbar.Default(int64(len(ids)), "loading images")
	}
	pool := workerspool.New(opts.Parallelism)
	err := pool.ForEach(len(ids), func(idx int) error {
		img, imgSizes, err := LoadImageByID(ids[idx], resolve, sourceDir, outputSize)
		if err != nil {
			return err
		}
		images[idx], sizes[idx] = img, imgSizes
		if bar != nil {
			_ = bar.Add(1)
		}
		return nil
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, nil, err
	}
	return images, sizes, nil
}
