package main

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ardnew/eisusb/host"
)

var csvHeader = []string{"frequency", "bit", "sample", "voltage", "current"}

// writeSweeps writes one row per sample. A negative bit is left empty.
func writeSweeps(w io.Writer, sweeps []host.Sweep) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, len(csvHeader))
	for _, s := range sweeps {
		row[0] = strconv.Itoa(s.Index)
		row[1] = ""
		if s.Bit >= 0 {
			row[1] = strconv.Itoa(s.Bit)
		}
		for i := range s.Voltage {
			row[2] = strconv.Itoa(i)
			row[3] = strconv.FormatFloat(float64(s.Voltage[i]), 'g', -1, 32)
			row[4] = strconv.FormatFloat(float64(s.Current[i]), 'g', -1, 32)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
