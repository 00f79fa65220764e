package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/eisusb/device/class/eis"
	"github.com/ardnew/eisusb/host"
	"github.com/ardnew/eisusb/pkg"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"eisctl", "--sim"}, args...))
	return out.String(), err
}

func TestRunCSV(t *testing.T) {
	out, err := runApp(t, "run", "--mask", "0x000003", "--amplitude", "100", "--exp", "2", "--periods", "3")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 1+2*12 {
		t.Fatalf("got %d rows, want %d", len(rows), 1+2*12)
	}
	if strings.Join(rows[0], ",") != "frequency,bit,sample,voltage,current" {
		t.Errorf("header = %v", rows[0])
	}
	if got := rows[13][:3]; got[0] != "1" || got[1] != "1" || got[2] != "0" {
		t.Errorf("row 13 = %v, want frequency 1 bit 1 sample 0", rows[13])
	}
}

func TestRunOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.csv")
	out, err := runApp(t, "run", "--mask", "0x800000", "--exp", "0", "--periods", "1", "-o", path)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(out, "1 frequencies") || !strings.Contains(out, "battery=4.500V") {
		t.Errorf("summary = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("file has %d lines, want 2", lines)
	}
	if !strings.Contains(string(data), "0,23,0,") {
		t.Errorf("file = %q, want a row for bit 23", data)
	}
}

func TestRunRejectsParams(t *testing.T) {
	_, err := runApp(t, "run", "--mask", "0")
	var derr *host.DeviceError
	if !errors.As(err, &derr) || derr.Code != eis.ErrorNoFrequency {
		t.Errorf("run error = %v, want DeviceError NO_FREQ_SPEC", err)
	}

	_, err = runApp(t, "run", "--mask", "1", "--exp", "16")
	if !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("run error = %v, want ErrInvalidParameter", err)
	}

	if _, err := runApp(t, "run", "--mask", "zz"); err == nil {
		t.Errorf("run with bad mask: expected error")
	}
}

func TestStatusAndInfo(t *testing.T) {
	out, err := runApp(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if out != "status: "+eis.StatusReady.String()+"\n" {
		t.Errorf("status output = %q", out)
	}

	out, err = runApp(t, "info")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	if !strings.Contains(out, "0x0B6A") || !strings.Contains(out, "EIS Potentiostat") {
		t.Errorf("info output = %q", out)
	}

	out, err = runApp(t, "start", "--mask", "0x3")
	if err != nil {
		t.Fatalf("start error = %v", err)
	}
	if out != "status: "+eis.StatusDAV.String()+"\n" {
		t.Errorf("start output = %q", out)
	}
}

func TestGlobalFlags(t *testing.T) {
	if _, err := runApp(t, "--vid", "nope", "status"); err == nil {
		t.Errorf("bad --vid: expected error")
	}
	_, err := runApp(t, "--vid", "0x1234", "--pid", "0x0001", "status")
	if err != nil {
		t.Errorf("status with ids error = %v", err)
	}
}

func TestWriteSweeps(t *testing.T) {
	var buf bytes.Buffer
	err := writeSweeps(&buf, []host.Sweep{{
		Index:   2,
		Bit:     -1,
		Voltage: []float32{0.5, -1},
		Current: []float32{0.25, 1e-3},
	}})
	if err != nil {
		t.Fatalf("writeSweeps() error = %v", err)
	}
	want := "frequency,bit,sample,voltage,current\n2,,0,0.5,0.25\n2,,1,-1,0.001\n"
	if buf.String() != want {
		t.Errorf("writeSweeps() = %q, want %q", buf.String(), want)
	}
}
