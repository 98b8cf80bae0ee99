package mp4index

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

func TestAvccToAnnexB(t *testing.T) {
	in := []byte{
		0, 0, 0, 2, 0x65, 0xaa,
		0, 0, 0, 1, 0x06,
	}
	want := []byte{
		0, 0, 0, 1, 0x65, 0xaa,
		0, 0, 0, 1, 0x06,
	}
	if got := avccToAnnexB(in); !bytes.Equal(got, want) {
		t.Errorf("avccToAnnexB = %x, want %x", got, want)
	}

	// A truncated trailing NALU is dropped.
	truncated := append(append([]byte{}, in...), 0, 0, 0, 9, 0x41)
	if got := avccToAnnexB(truncated); !bytes.Equal(got, want) {
		t.Errorf("truncated input = %x, want %x", got, want)
	}
}

// syntheticIndex builds an index whose timestamps start two frames late, as
// an edit list would leave them, with a keyframe every gop samples.
func syntheticIndex(count, gop int, dur uint32) *Index {
	ix := &Index{Timescale: 60000, header: []byte{0, 0, 0, 1, 0x67}}
	for i := 0; i < count; i++ {
		ix.Samples = append(ix.Samples, Sample{
			DTS:  int64(i) * int64(dur),
			PTS:  int64(i+2) * int64(dur),
			Dur:  dur,
			Sync: i%gop == 0,
			data: []byte{0, 0, 0, 1, byte(i)},
		})
	}
	ix.finish()
	return ix
}

func TestFinish_NormalizesPresentationTime(t *testing.T) {
	ix := syntheticIndex(30, 6, 1001)

	for i, s := range ix.Samples {
		if want := int64(i) * 1001; s.PTS != want {
			t.Fatalf("sample %d PTS = %d, want %d", i, s.PTS, want)
		}
	}
	if got := ix.Keyframes(); len(got) != 5 || got[1] != 6 {
		t.Errorf("Keyframes = %v", got)
	}
}

func TestFrameRate(t *testing.T) {
	ix := syntheticIndex(30, 6, 1001)
	rate, err := ix.FrameRate()
	if err != nil {
		t.Fatalf("FrameRate: %v", err)
	}
	if rate != timebase.R(60000, 1001) {
		t.Errorf("FrameRate = %v, want 60000/1001", rate)
	}
	if ix.TimeBase() != timebase.R(1, 60000) {
		t.Errorf("TimeBase = %v", ix.TimeBase())
	}

	ix = syntheticIndex(10, 5, 2000)
	if rate, _ := ix.FrameRate(); rate != timebase.R(30, 1) {
		t.Errorf("FrameRate = %v, want 30/1", rate)
	}
}

func TestKeyframeBefore(t *testing.T) {
	ix := syntheticIndex(60, 10, 1000)

	tests := []struct {
		pts  int64
		want int
	}{
		{0, 0},
		{-5, 0},
		{9000, 0},
		{ix.Samples[10].PTS, 10},
		{ix.Samples[10].PTS + 1, 10},
		{ix.Samples[20].PTS - 1, 10},
		{1 << 40, 50},
	}
	for _, tt := range tests {
		if got := ix.KeyframeBefore(tt.pts); got != tt.want {
			t.Errorf("KeyframeBefore(%d) = %d, want %d", tt.pts, got, tt.want)
		}
	}
}

func TestReadSample_PrependsParameterSetsOnKeyframes(t *testing.T) {
	ix := &Index{header: []byte{0, 0, 0, 1, 0x67, 0, 0, 0, 1, 0x68}}
	ix.Samples = []Sample{
		{Sync: true, Offset: 2, Size: 6},
		{Sync: false, Offset: 8, Size: 5},
	}
	ix.finish()
	file := bytes.NewReader([]byte{
		0xff, 0xff,
		0, 0, 0, 2, 0x65, 0x01,
		0, 0, 0, 1, 0x41,
	})

	key, err := ix.ReadSample(file, 0)
	if err != nil {
		t.Fatalf("ReadSample(0): %v", err)
	}
	want := []byte{0, 0, 0, 1, 0x67, 0, 0, 0, 1, 0x68, 0, 0, 0, 1, 0x65, 0x01}
	if !bytes.Equal(key, want) {
		t.Errorf("keyframe = %x, want %x", key, want)
	}

	delta, err := ix.ReadSample(file, 1)
	if err != nil {
		t.Fatalf("ReadSample(1): %v", err)
	}
	if !bytes.Equal(delta, []byte{0, 0, 0, 1, 0x41}) {
		t.Errorf("delta frame = %x", delta)
	}

	if _, err := ix.ReadSample(file, 2); err == nil {
		t.Error("expected an error for an out-of-range sample")
	}
}

func TestBuild_NotMP4(t *testing.T) {
	_, err := Build(bytes.NewReader([]byte("this is not a video")))
	if !errors.Is(err, ports.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

// encodeTestVideo renders a synthetic clip with ffmpeg, skipping the test
// when ffmpeg or libx264 is unavailable.
func encodeTestVideo(t *testing.T, name string, extra ...string) string {
	t.Helper()
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	out := filepath.Join(t.TempDir(), name)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=25",
		"-frames:v", "50",
		"-c:v", "libx264", "-g", "10", "-bf", "2", "-pix_fmt", "yuv420p",
	}
	args = append(args, extra...)
	args = append(args, out)
	if output, err := exec.Command(ffmpeg, args...).CombinedOutput(); err != nil {
		t.Skipf("ffmpeg could not encode test clip: %v: %s", err, output)
	}
	return out
}

func checkBuiltIndex(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	ix, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.FrameCount() != 50 {
		t.Errorf("FrameCount = %d, want 50", ix.FrameCount())
	}
	if ix.Width != 64 || ix.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", ix.Width, ix.Height)
	}
	rate, err := ix.FrameRate()
	if err != nil || rate != timebase.R(25, 1) {
		t.Errorf("FrameRate = %v, %v; want 25/1", rate, err)
	}

	tb := ix.TimeBase()
	frames := make(map[int]bool)
	for _, s := range ix.Samples {
		frames[timebase.PTSToFrame(s.PTS, tb, rate)] = true
	}
	for n := 0; n < 50; n++ {
		if !frames[n] {
			t.Errorf("no sample presents frame %d", n)
		}
	}
	if !ix.Samples[0].Sync {
		t.Error("first sample is not a keyframe")
	}

	data, err := ix.ReadSample(f, 0)
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0, 0, 0, 1}) {
		t.Errorf("sample 0 is not Annex B: %x", data[:8])
	}
}

func TestBuild_Progressive(t *testing.T) {
	checkBuiltIndex(t, encodeTestVideo(t, "progressive.mp4"))
}

func TestBuild_Fragmented(t *testing.T) {
	checkBuiltIndex(t, encodeTestVideo(t, "fragmented.mp4", "-movflags", "frag_keyframe+empty_moov"))
}
