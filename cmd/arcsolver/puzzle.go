package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

// puzzleFile is the on-disk JSON shape spec.md §6 names for puzzle ingestion:
// `{train: [{input, output}, ...], test: [{input}, ...]}`. Loading puzzle
// files from disk is explicit Non-goal territory (dataset loaders are
// external collaborators); this is the minimal shape needed to demonstrate
// the Facade's contract, not a dataset loader.
type puzzleFile struct {
	Train []struct {
		Input  [][]int `json:"input"`
		Output [][]int `json:"output"`
	} `json:"train"`
	Test []struct {
		Input [][]int `json:"input"`
	} `json:"test"`
}

// loadPuzzle reads a single puzzle JSON file and validates it into a
// grid.Puzzle. The puzzle's ID defaults to the file's base name (without
// extension) so logs and output files can be correlated back to it.
func loadPuzzle(path string) (grid.Puzzle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return grid.Puzzle{}, fmt.Errorf("read puzzle file: %w", err)
	}

	var pf puzzleFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return grid.Puzzle{}, fmt.Errorf("parse puzzle file: %w", err)
	}
	if len(pf.Train) == 0 {
		return grid.Puzzle{}, fmt.Errorf("puzzle %s: at least one training example is required", path)
	}
	if len(pf.Test) == 0 {
		return grid.Puzzle{}, fmt.Errorf("puzzle %s: at least one test example is required", path)
	}

	puzzle := grid.Puzzle{
		ID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	for i, t := range pf.Train {
		in, err := grid.New(t.Input)
		if err != nil {
			return grid.Puzzle{}, fmt.Errorf("puzzle %s: train[%d].input: %w", path, i, err)
		}
		out, err := grid.New(t.Output)
		if err != nil {
			return grid.Puzzle{}, fmt.Errorf("puzzle %s: train[%d].output: %w", path, i, err)
		}
		puzzle.Train = append(puzzle.Train, grid.Example{Input: in, Output: out})
	}
	for i, t := range pf.Test {
		in, err := grid.New(t.Input)
		if err != nil {
			return grid.Puzzle{}, fmt.Errorf("puzzle %s: test[%d].input: %w", path, i, err)
		}
		puzzle.Test = append(puzzle.Test, grid.Example{Input: in})
	}
	return puzzle, nil
}
