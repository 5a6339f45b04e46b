// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package isic2018 loads the ISIC 2018 skin lesion segmentation dataset (Task 1 and 2), caching the
// decoded and resized images as .npy snapshots, and partitions the training data into folds.
//
// The dataset is distributed as one zip file per role (training inputs, training ground truth masks,
// validation inputs and test inputs), see Download. Once extracted in a data directory:
//
//	cache, err := isic2018.NewCache(isic2018.Config{DataDir: "~/work/isic2018", Verbose: true})
//	if err != nil { ... }
//	split, err := cache.LoadTrainingData(128, 5, 0, 0)  // 128x128 images, fold 0 of 5 for validation.
//	if err != nil { ... }
//	trainImages, trainMasks := split.Train.X, split.Train.Y  // [N, 128, 128, 3] and [N, 128, 128]
//
// The first call for a role and resolution decodes all images and writes a snapshot in the cache directory;
// following calls (also in later runs) read the snapshot instead.
package isic2018
