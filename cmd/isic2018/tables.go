// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/isic2018"
	"github.com/gomlx/isic2018/pkg/partition"
	"github.com/janpfeifer/must"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// newPlainTable returns a table with alternating row colors, and numeric columns (the ones after
// the first) aligned to the right.
func newPlainTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = evenRowStyle
			} else {
				s = oddRowStyle
			}
			if col > 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

// summary of the arrays loaded.
type summary struct {
	table   *lgtable.Table
	numRows int
}

func newSummary() *summary {
	return &summary{table: newPlainTable("Set", "Examples", "Inputs", "Targets", "Memory")}
}

func (s *summary) empty() bool { return s.numRows == 0 }

func (s *summary) addPair(name string, pair partition.Pair) {
	s.table.Row(name, humanize.Comma(int64(pair.Len())), shapeString(pair.X), shapeString(pair.Y),
		humanize.Bytes(uint64(pair.X.Memory()+pair.Y.Memory())))
	s.numRows++
}

func (s *summary) addEvaluation(name string, data *isic2018.EvaluationData) {
	s.table.Row(name, humanize.Comma(int64(len(data.IDs))), shapeString(data.Images), "sizes "+shapeString(data.Sizes),
		humanize.Bytes(uint64(data.Images.Memory()+data.Sizes.Memory())))
	s.numRows++
}

func (s *summary) render() string {
	return s.table.Render()
}

func shapeString(a *ndarray.Array) string {
	if a == nil {
		return "-"
	}
	return a.String()
}

// listSnapshots prints a table with the snapshots in the cache directory.
func listSnapshots(cache *isic2018.Cache) {
	snapshots := must.M1(cache.Snapshots())
	fmt.Println(titleStyle.Render(fmt.Sprintf("Snapshots in %s", filepath.Clean(cache.Dir()))))
	if len(snapshots) == 0 {
		fmt.Println("No snapshots.")
		return
	}
	table := newPlainTable("File", "Role", "Resolution", "Bytes")
	var total int64
	for _, info := range snapshots {
		resolution := resolutionName(info.OutputSize)
		if info.IsSizes {
			resolution = "original sizes"
		}
		table.Row(info.Name, info.Role.String(), resolution, humanize.Bytes(uint64(info.Bytes)))
		total += info.Bytes
	}
	table.Row("total: "+strconv.Itoa(len(snapshots))+" files", "", "", humanize.Bytes(uint64(total)))
	fmt.Println(table.Render())
}
