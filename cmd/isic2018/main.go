// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// isic2018 prepares the snapshot caches of the ISIC 2018 segmentation dataset, and reports on them.
//
// Examples:
//
//	# Download the dataset, build the 128x128 caches and print the partition of fold 0.
//	isic2018 -data=~/work/isic2018 -download -size=128
//
//	# List the snapshots in the cache.
//	isic2018 -data=~/work/isic2018 -list
//
//	# Remove the 128x128 snapshots, so they are rebuilt next time.
//	isic2018 -data=~/work/isic2018 -clear -size=128
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/isic2018/pkg/isic2018"
	"github.com/gomlx/isic2018/pkg/partition"
	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/gomlx/isic2018/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "", "YAML configuration file with data_dir, cache_dir, parallelism and "+
		"verbose. Flags given explicitly take precedence.")
	flagDataDir  = flag.String("data", isic2018.DefaultDataDir, "Directory with the extracted ISIC 2018 archives.")
	flagCacheDir = flag.String("cache", "", "Directory where to store the snapshots. Defaults to <data>/cache.")
	flagDownload = flag.Bool("download", false, "Download and extract the archives of the selected roles, "+
		"if not yet present.")
	flagSize = flag.Int("size", 0, "Images are resized to size x size. "+
		"0 keeps the native resolution, which only works if all images have the same size.")
	flagNumFolds  = flag.Int("folds", partition.DefaultNumFolds, "Number of folds of the training data.")
	flagFold      = flag.Int("fold", 0, "Fold used for validation, in [0, folds).")
	flagTestSplit = flag.Float64("test_split", 0, "Fraction of the training data held out for test.")
	flagParallel  = flag.Int("parallelism", 0, "Number of images decoded in parallel. "+
		"0 decodes sequentially, -1 uses all CPUs.")
	flagList     = flag.Bool("list", false, "List the snapshots in the cache directory and exit.")
	flagClear    = flag.Bool("clear", false, "Remove the image snapshots of the given -size and exit.")
	flagClearAll = flag.Bool("clear_all", false, "Remove all snapshots and exit.")
	flagQuiet    = flag.Bool("quiet", false, "Don't display progress bars.")
	flagNoColor  = flag.Bool("no_color", false, "Render tables without colors or styles.")
	flagRoles    = xslices.Flag("roles", isic2018.AllRoles,
		"Comma-separated list of roles to download and prepare: TrainingInput, TrainingGroundTruth, "+
			"ValidationInput and TestInput.", parseRole)
)

// parseRole converts a role name (as printed by Role.String) to a Role.
func parseRole(name string) (isic2018.Role, error) {
	for _, role := range isic2018.AllRoles {
		if strings.EqualFold(role.String(), name) || role.Dir() == name {
			return role, nil
		}
	}
	return 0, errors.Errorf("unknown role %q", name)
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unknown arguments %q. See 'isic2018 -help'.", flag.Args())
		os.Exit(1)
	}

	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	config := buildConfig()
	if *flagDownload {
		must.M(isic2018.Download(config.DataDir, config.Verbose, *flagRoles...))
	} else if dataDir := must.M1(fsutil.ReplaceTildeInDir(config.DataDir)); !fsutil.MustFileExists(dataDir) {
		klog.Exitf("Data directory %q doesn't exist, use -download to fetch the dataset.", dataDir)
	}
	cache := must.M1(isic2018.NewCache(config))

	switch {
	case *flagList:
		listSnapshots(cache)
	case *flagClear || *flagClearAll:
		removed := must.M1(cache.Clear(*flagSize, *flagClearAll))
		fmt.Printf("Removed %d snapshot(s) from %q\n", len(removed), cache.Dir())
		for _, name := range removed {
			fmt.Printf("\t%s\n", name)
		}
	default:
		prepare(cache)
	}
}

// buildConfig reads the -config file, if given, and overrides it with the flags set explicitly.
func buildConfig() isic2018.Config {
	config := isic2018.DefaultConfig()
	if *flagConfig != "" {
		config = must.M1(isic2018.LoadConfig(*flagConfig))
	}
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if *flagConfig == "" || setFlags["data"] {
		config.DataDir = *flagDataDir
	}
	if *flagConfig == "" || setFlags["cache"] {
		config.CacheDir = *flagCacheDir
	}
	if *flagConfig == "" || setFlags["parallelism"] {
		config.Parallelism = *flagParallel
	}
	if *flagQuiet {
		config.Verbose = false
	}
	return config
}

// prepare builds (or reads) the snapshots of the selected roles and prints a summary.
func prepare(cache *isic2018.Cache) {
	roles := *flagRoles
	catalog := cache.Catalog()
	fmt.Println(titleStyle.Render(fmt.Sprintf("ISIC 2018 @ %s", resolutionName(*flagSize))))
	summary := newSummary()

	wantTraining := slices.Contains(roles, isic2018.TrainingInput) || slices.Contains(roles, isic2018.TrainingGroundTruth)
	if wantTraining && catalog.NumImages(isic2018.TrainingInput) > 0 {
		split := must.M1(cache.LoadTrainingData(*flagSize, *flagNumFolds, *flagFold, *flagTestSplit))
		summary.addPair(fmt.Sprintf("train (fold %d/%d)", *flagFold, *flagNumFolds), split.Train)
		summary.addPair("validation", split.Validation)
		summary.addPair("test (holdout)", split.Test)
	}
	for _, role := range []isic2018.Role{isic2018.ValidationInput, isic2018.TestInput} {
		if !slices.Contains(roles, role) || catalog.NumImages(role) == 0 {
			continue
		}
		var data *isic2018.EvaluationData
		if role == isic2018.ValidationInput {
			data = must.M1(cache.LoadValidationData(*flagSize))
		} else {
			data = must.M1(cache.LoadTestData(*flagSize))
		}
		summary.addEvaluation(role.String(), data)
	}
	if summary.empty() {
		klog.Warningf("No images found in %q for roles %v, use -download to fetch them.", catalog.DataDir(), roles)
		return
	}
	fmt.Println(summary.render())
}

func resolutionName(size int) string {
	if size == 0 {
		return "native resolution"
	}
	return fmt.Sprintf("%dx%d", size, size)
}
