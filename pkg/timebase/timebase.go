// Package timebase converts between frame numbers, presentation timestamps
// and wall-clock seconds using exact rational frame rates.
package timebase

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRational is returned when a rational cannot be parsed or has a
// non-positive component.
var ErrInvalidRational = errors.New("timebase: invalid rational")

// frameEpsilon absorbs float error when a time lands exactly on a frame boundary.
const frameEpsilon = 1e-6

// Rational is an exact fraction such as a frame rate (60000/1001) or a
// stream time base (1/90000).
type Rational struct {
	Num int64
	Den int64
}

// R is shorthand for Rational{num, den}.
func R(num, den int64) Rational {
	return Rational{Num: num, Den: den}
}

// Valid reports whether both components are positive.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Float64 returns the decimal value of r.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Inverse returns Den/Num.
func (r Rational) Inverse() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Reduce returns r in lowest terms.
func (r Rational) Reduce() Rational {
	g := gcd(r.Num, r.Den)
	if g <= 1 {
		return r
	}
	return Rational{Num: r.Num / g, Den: r.Den / g}
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ParseRational parses "num/den" (as printed by ffprobe) or a plain decimal.
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("%w: %q", ErrInvalidRational, s)
		}
		d, err := strconv.ParseInt(den, 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("%w: %q", ErrInvalidRational, s)
		}
		r := Rational{Num: n, Den: d}
		if !r.Valid() {
			return Rational{}, fmt.Errorf("%w: %q", ErrInvalidRational, s)
		}
		return r.Reduce(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("%w: %q", ErrInvalidRational, s)
	}
	return FromFloat(f)
}

// FromFloat recovers an exact frame rate from a decimal such as 59.94.
// NTSC rates map to N*1000/1001; everything else is approximated with a
// millisecond-precision denominator.
func FromFloat(f float64) (Rational, error) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Rational{}, fmt.Errorf("%w: %v", ErrInvalidRational, f)
	}
	if whole := math.Round(f); math.Abs(f-whole) < 1e-6 {
		return Rational{Num: int64(whole), Den: 1}, nil
	}
	ntsc := math.Round(f * 1001 / 1000)
	if math.Abs(f-ntsc*1000/1001) < 0.005 {
		return Rational{Num: int64(ntsc) * 1000, Den: 1001}, nil
	}
	return Rational{Num: int64(math.Round(f * 1000)), Den: 1000}.Reduce(), nil
}

// FrameToTime returns the presentation time in seconds of frame at rate.
func FrameToTime(frame int, rate Rational) float64 {
	if !rate.Valid() {
		return 0
	}
	return float64(int64(frame)*rate.Den) / float64(rate.Num)
}

// TimeToFrame returns floor(seconds*rate).
func TimeToFrame(seconds float64, rate Rational) int {
	if !rate.Valid() {
		return 0
	}
	x := seconds * float64(rate.Num) / float64(rate.Den)
	return int(math.Floor(x + frameEpsilon))
}

// WholeSeconds returns floor(frame/rate), the second a frame falls in.
func WholeSeconds(frame int, rate Rational) int64 {
	if !rate.Valid() || frame <= 0 {
		return 0
	}
	return int64(frame) * rate.Den / rate.Num
}

// SecondsToPTS converts whole seconds into units of timeBase.
func SecondsToPTS(seconds int64, timeBase Rational) int64 {
	if !timeBase.Valid() {
		return 0
	}
	return floorDiv(mul(seconds, timeBase.Den), big.NewInt(timeBase.Num))
}

// PTSToFrame returns floor(pts*timeBase*rate) computed exactly.
func PTSToFrame(pts int64, timeBase, rate Rational) int {
	if !timeBase.Valid() || !rate.Valid() {
		return 0
	}
	num := mul(pts, timeBase.Num)
	num.Mul(num, big.NewInt(rate.Num))
	den := mul(timeBase.Den, rate.Den)
	return int(floorDiv(num, den))
}

// FrameToPTS returns the smallest pts whose frame number is frame.
func FrameToPTS(frame int, timeBase, rate Rational) int64 {
	if !timeBase.Valid() || !rate.Valid() {
		return 0
	}
	num := mul(int64(frame), rate.Den)
	num.Mul(num, big.NewInt(timeBase.Den))
	den := mul(rate.Num, timeBase.Num)
	return -floorDiv(num.Neg(num), den)
}

// PTSToSeconds converts a timestamp to seconds.
func PTSToSeconds(pts int64, timeBase Rational) float64 {
	return float64(pts) * timeBase.Float64()
}

// FrameDuration is the exact interval between frames at rate.
func FrameDuration(rate Rational) time.Duration {
	if !rate.Valid() {
		return 0
	}
	return time.Duration(rate.Den * int64(time.Second) / rate.Num)
}

// Timecode formats seconds as HH:MM:SS.mmm.
func Timecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Floor(seconds*1000 + 1e-6))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

func mul(a, b int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
}

func floorDiv(num, den *big.Int) int64 {
	q, m := new(big.Int), new(big.Int)
	q.DivMod(num, den, m)
	return q.Int64()
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
