// Package oscope drives an Agilent 54855A oscilloscope over GPIB.
package oscope

import (
	"fmt"
	"strconv"
	"strings"

	"chiptest-go/internal/gpib"
)

var (
	edgeDirections = map[string]bool{"rising": true, "falling": true, "either": true}
	edgePositions  = map[string]bool{"upper": true, "middle": true, "lower": true}
)

type AG54855A struct {
	conn gpib.Conn
}

func New(conn gpib.Conn) *AG54855A {
	return &AG54855A{conn: conn}
}

func (o *AG54855A) queryFloat(cmd string) (float64, error) {
	raw, err := o.conn.Query(cmd)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("oscope: %s returned %q: %w", cmd, raw, err)
	}
	return value, nil
}

// SetupTimeDelta configures the delta-time measurement. Directions are
// "rising", "falling" or "either"; positions are "upper", "middle" or
// "lower"; edge numbers must be between 1 and 65534.
func (o *AG54855A) SetupTimeDelta(dir1 string, num1 int, pos1, dir2 string, num2 int, pos2 string) error {
	for _, dir := range []string{dir1, dir2} {
		if !edgeDirections[dir] {
			return fmt.Errorf("oscope: invalid edge direction %q", dir)
		}
	}
	for _, pos := range []string{pos1, pos2} {
		if !edgePositions[pos] {
			return fmt.Errorf("oscope: invalid edge position %q", pos)
		}
	}
	for _, num := range []int{num1, num2} {
		if num < 1 || num > 65534 {
			return fmt.Errorf("oscope: edge number %d out of range", num)
		}
	}
	cmd := fmt.Sprintf(":measure:define deltatime,%s,%d,%s,%s,%d,%s", dir1, num1, pos1, dir2, num2, pos2)
	return o.conn.Write(cmd)
}

// TimeDelta measures the time difference between the waveforms on the two
// given channels, in seconds.
func (o *AG54855A) TimeDelta(ch1, ch2 int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:deltatime? channel%d,channel%d", ch1, ch2))
}

// DisplayRange returns the display time range in seconds.
func (o *AG54855A) DisplayRange() (float64, error) {
	return o.queryFloat(":timebase:range?")
}

// SetDisplayRange sets the display time range.
func (o *AG54855A) SetDisplayRange(trange float64) error {
	return o.conn.Write(fmt.Sprintf(":timebase:range %.4g", trange))
}

// VRms returns the AC RMS voltage of one cycle on the given channel.
func (o *AG54855A) VRms(ch int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:vrms? cycle,ac,channel%d", ch))
}

// VRmsDisplay returns the AC RMS voltage over the whole display.
func (o *AG54855A) VRmsDisplay(ch int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:vrms? display,ac,channel%d", ch))
}

func (o *AG54855A) SetFFTThreshold(thresholdDB float64) error {
	return o.conn.Write(fmt.Sprintf(":measure:fft:threshold %.4g", thresholdDB))
}

func (o *AG54855A) FFTThreshold() (float64, error) {
	return o.queryFloat(":measure:fft:threshold?")
}

func (o *AG54855A) SetFFTPeak1(n string) error {
	return o.conn.Write(":measure:fft:peak1 " + n)
}

func (o *AG54855A) SetFFTPeak2(n string) error {
	return o.conn.Write(":measure:fft:peak2 " + n)
}

// FFTMagnitude returns the FFT magnitude of the given function.
func (o *AG54855A) FFTMagnitude(funcID int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:fft:magnitude? function%d", funcID))
}

// CalcFFTMagnitude makes the scope compute the FFT magnitude of a channel
// into a function slot.
func (o *AG54855A) CalcFFTMagnitude(ch, funcID int) error {
	return o.conn.Write(fmt.Sprintf(":function%d:fftmagnitude channel%d", funcID, ch))
}

// ValueAt returns the waveform value at the given X coordinate. wvtype is the
// waveform type prefix, e.g. "channel" or "function".
func (o *AG54855A) ValueAt(xval float64, wvtype string, wvID int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:vtime? %.6g,%s%d", xval, wvtype, wvID))
}

// SetFullScale sets the full-scale voltage of the given channel.
func (o *AG54855A) SetFullScale(ch int, vfull float64) error {
	return o.conn.Write(fmt.Sprintf(":channel%d:range %.4g", ch, vfull))
}

// FullScale returns the full-scale voltage of the given channel.
func (o *AG54855A) FullScale(ch int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":channel%d:range?", ch))
}

// VMax returns the maximum voltage seen on the given channel.
func (o *AG54855A) VMax(ch int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:vmax? channel%d", ch))
}

// VMin returns the minimum voltage seen on the given channel.
func (o *AG54855A) VMin(ch int) (float64, error) {
	return o.queryFloat(fmt.Sprintf(":measure:vmin? channel%d", ch))
}
