// Package dataset loads training samples from CSV and normalizes inputs.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/domonkosgyomorey/BrainBuilder/nn"
)

type errInvalidLine struct {
	lineNum  int
	splits   int
	expected int
}

func (e errInvalidLine) Error() string {
	return fmt.Sprintf("at line %d, expected %d values, got %d",
		e.lineNum, e.expected, e.splits)
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// readRows calls fn with the parsed values and line number of every row.
// label names the column kind for parse errors.
func readRows(r io.Reader, label func(col int) string, fn func(line int, values []float64) error) error {
	reader := newReader(r)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading csv: %w", err)
		}
		lineNum, _ := reader.FieldPos(0)
		values := make([]float64, len(record))
		for i, field := range record {
			if values[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
				return fmt.Errorf("at line %d, parsing %s: %w", lineNum, label(i), err)
			}
		}
		if err := fn(lineNum, values); err != nil {
			return err
		}
	}
}

// ReadCSV parses rows of inputNum inputs followed by outputNum targets.
// Blank lines and lines starting with '#' are skipped.
func ReadCSV(r io.Reader, inputNum, outputNum int) (nn.Dataset, error) {
	if inputNum <= 0 || outputNum <= 0 {
		return nil, fmt.Errorf("input and output widths must be positive, got %d and %d", inputNum, outputNum)
	}
	label := func(col int) string {
		if col >= inputNum {
			return "target"
		}
		return "input"
	}
	var data nn.Dataset
	err := readRows(r, label, func(line int, values []float64) error {
		if len(values) != inputNum+outputNum {
			return errInvalidLine{
				lineNum:  line,
				splits:   len(values),
				expected: inputNum + outputNum,
			}
		}
		data = append(data, nn.Sample{
			Input:  values[:inputNum:inputNum],
			Target: values[inputNum:],
		})
		return nil
	})
	return data, err
}

// ReadRows parses every row as a vector of floats without splitting it into
// inputs and targets. Rows may differ in width.
func ReadRows(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	err := readRows(r, func(int) string { return "value" }, func(_ int, values []float64) error {
		rows = append(rows, values)
		return nil
	})
	return rows, err
}

// LoadCSV reads the CSV file at path.
func LoadCSV(path string, inputNum, outputNum int) (nn.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, inputNum, outputNum)
}

// XOR is the four-sample exclusive-or truth table.
func XOR() nn.Dataset {
	return nn.Dataset{
		{Input: []float64{0, 0}, Target: []float64{0}},
		{Input: []float64{0, 1}, Target: []float64{1}},
		{Input: []float64{1, 0}, Target: []float64{1}},
		{Input: []float64{1, 1}, Target: []float64{0}},
	}
}

// CalculateMean returns the per-feature mean of the inputs.
func CalculateMean(data nn.Dataset) []float64 {
	cols := columns(data)
	mean := make([]float64, len(cols))
	for i, col := range cols {
		mean[i] = stat.Mean(col, nil)
	}
	return mean
}

// CalculateStdDev returns the per-feature population standard deviation of
// the inputs.
func CalculateStdDev(data nn.Dataset) []float64 {
	cols := columns(data)
	std := make([]float64, len(cols))
	for i, col := range cols {
		std[i] = stat.PopStdDev(col, nil)
	}
	return std
}

// Normalize returns a copy of data with each input feature shifted by mean
// and scaled by std. Features with zero deviation are only shifted.
func Normalize(data nn.Dataset, mean, std []float64) (nn.Dataset, error) {
	out := make(nn.Dataset, len(data))
	for i, s := range data {
		if len(s.Input) != len(mean) || len(s.Input) != len(std) {
			return nil, fmt.Errorf("sample %d has %d inputs, statistics cover %d", i, len(s.Input), len(mean))
		}
		in := make([]float64, len(s.Input))
		for j, x := range s.Input {
			in[j] = x - mean[j]
			if std[j] != 0 {
				in[j] /= std[j]
			}
		}
		out[i] = nn.Sample{Input: in, Target: append([]float64(nil), s.Target...)}
	}
	return out, nil
}

func columns(data nn.Dataset) [][]float64 {
	if len(data) == 0 {
		return nil
	}
	cols := make([][]float64, len(data[0].Input))
	for _, s := range data {
		for j := range cols {
			if j < len(s.Input) {
				cols[j] = append(cols[j], s.Input[j])
			}
		}
	}
	return cols
}
