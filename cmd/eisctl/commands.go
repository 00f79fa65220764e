package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ardnew/eisusb/device/class/eis"
	"github.com/ardnew/eisusb/host"
)

func infoCmd(ctx *cli.Context, c *host.Client) error {
	id, err := c.Identify(ctx.Context)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "vendor:       0x%04X\n", id.Device.VendorID)
	fmt.Fprintf(w, "product:      0x%04X\n", id.Device.ProductID)
	fmt.Fprintf(w, "version:      0x%04X\n", id.Device.DeviceVersion)
	fmt.Fprintf(w, "manufacturer: %s\n", id.Manufacturer)
	fmt.Fprintf(w, "name:         %s\n", id.Product)
	fmt.Fprintf(w, "serial:       %s\n", id.SerialNumber)
	fmt.Fprintf(w, "max power:    %d mA\n", 2*int(id.Configuration.MaxPower))
	return nil
}

func printReport(ctx *cli.Context, r host.Report) {
	w := ctx.App.Writer
	switch r.Status {
	case eis.StatusError:
		fmt.Fprintf(w, "status: %s (%s)\n", r.Status, r.Error)
	case eis.StatusSign:
		fmt.Fprintf(w, "status: %s ranging=0x%02X battery=%.3fV\n", r.Status, r.CurrentRanging, r.Battery)
	default:
		fmt.Fprintf(w, "status: %s\n", r.Status)
	}
}

func statusCmd(ctx *cli.Context, c *host.Client) error {
	r, err := c.Status(ctx.Context)
	if err != nil {
		return err
	}
	printReport(ctx, r)
	return nil
}

func startCmd(ctx *cli.Context, c *host.Client) error {
	p, err := parseParams(ctx)
	if err != nil {
		return err
	}
	if err := c.Start(ctx.Context, p); err != nil {
		return err
	}
	r, err := c.Status(ctx.Context)
	if err != nil {
		return err
	}
	printReport(ctx, r)
	return r.Err()
}

func fetchCmd(ctx *cli.Context, c *host.Client) error {
	i := ctx.Int(frequencyFlag.Name)
	voltage, current, err := c.Fetch(ctx.Context, i)
	if err != nil {
		return err
	}
	w, closeOut, err := output(ctx)
	if err != nil {
		return err
	}
	if err := writeSweeps(w, []host.Sweep{{Index: i, Bit: -1, Voltage: voltage, Current: current}}); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func abortCmd(ctx *cli.Context, c *host.Client) error {
	if err := c.Abort(ctx.Context); err != nil {
		return err
	}
	return statusCmd(ctx, c)
}

func clearCmd(ctx *cli.Context, c *host.Client) error {
	s, err := c.Clear(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "status: %s\n", s)
	return nil
}

func runCmd(ctx *cli.Context, c *host.Client) error {
	p, err := parseParams(ctx)
	if err != nil {
		return err
	}
	m, err := c.Run(ctx.Context, p)
	if err != nil {
		return err
	}
	w, closeOut, err := output(ctx)
	if err != nil {
		return err
	}
	if err := writeSweeps(w, m.Sweeps); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	if ctx.Path(outputFlag.Name) != "" {
		fmt.Fprintf(ctx.App.Writer, "%d frequencies, ranging=0x%02X battery=%.3fV\n",
			len(m.Sweeps), m.CurrentRanging, m.Battery)
	}
	return nil
}
