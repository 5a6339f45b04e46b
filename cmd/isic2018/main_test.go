// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/isic2018"
	"github.com/gomlx/isic2018/pkg/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := parseRole("validationinput")
	require.NoError(t, err)
	assert.Equal(t, isic2018.ValidationInput, role)

	role, err = parseRole("ISIC2018_Task1_Training_GroundTruth")
	require.NoError(t, err)
	assert.Equal(t, isic2018.TrainingGroundTruth, role)

	_, err = parseRole("Task3")
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "native resolution", resolutionName(0))
	assert.Equal(t, "64x64", resolutionName(64))

	s := newSummary()
	assert.True(t, s.empty())
	s.addPair("train", partition.Pair{
		X: ndarray.MustFromFlat(make([]uint8, 2*4*4*3), 2, 4, 4, 3),
		Y: ndarray.MustFromFlat(make([]uint8, 2*4*4), 2, 4, 4),
	})
	assert.False(t, s.empty())
	rendered := s.render()
	assert.Contains(t, rendered, "train")
	assert.Contains(t, rendered, "[2 4 4 3]")
}
