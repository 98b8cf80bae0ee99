// Package mp4index builds the sample table of the video track of an MP4 file:
// decode and presentation timestamps, keyframes and byte ranges. Decoding
// can then start at any keyframe without reading the samples before it.
package mp4index

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/framecue/pkg/adapters/codecdetect"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

var (
	// ErrNoVideoTrack is returned when the file has no video track.
	ErrNoVideoTrack = errors.New("mp4index: no video track found")

	// ErrUnsupportedCodec is returned for video tracks that cannot be fed to
	// the elementary stream decoder.
	ErrUnsupportedCodec = errors.New("mp4index: unsupported codec")

	// ErrNoSamples is returned for a video track without samples.
	ErrNoSamples = errors.New("mp4index: no samples")
)

// Sample is one access unit of the video track, in decode order.
type Sample struct {
	DTS  int64
	PTS  int64
	Dur  uint32
	Sync bool

	Offset int64
	Size   uint32

	// data is set for fragmented files, whose samples are read up front.
	data []byte
}

// Index is the sample table of a video track.
type Index struct {
	Codec     codecdetect.Codec
	Width     int
	Height    int
	Timescale uint32
	Samples   []Sample

	header []byte
	syncs  []int
}

// Build reads the box structure from r and indexes its first video track.
// Progressive files are indexed without reading sample data; fragmented
// files are read completely.
func Build(r io.ReadSeeker) (*Index, error) {
	f, err := mp4.DecodeFile(r, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp4: %v", ports.ErrUnsupportedFormat, err)
	}

	var ix *Index
	if f.IsFragmented() {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind: %w", err)
		}
		if f, err = mp4.DecodeFile(r); err != nil {
			return nil, fmt.Errorf("%w: decode fragmented mp4: %v", ports.ErrUnsupportedFormat, err)
		}
		ix, err = buildFragmented(f)
	} else {
		ix, err = buildProgressive(f)
	}
	if err != nil {
		return nil, err
	}
	if len(ix.Samples) == 0 {
		return nil, fmt.Errorf("%w: %w", ports.ErrUnsupportedFormat, ErrNoSamples)
	}
	ix.finish()
	return ix, nil
}

// videoTrack returns the first video track and its sample entry.
func videoTrack(traks []*mp4.TrakBox) (*mp4.TrakBox, *mp4.VisualSampleEntryBox, codecdetect.Codec, error) {
	for _, trak := range traks {
		codec, ok := codecdetect.DetectTrack(trak)
		if !ok || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		var entry *mp4.VisualSampleEntryBox
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				entry = vse
				break
			}
		}
		if entry == nil {
			continue
		}
		if codec != codecdetect.CodecH264 {
			return nil, nil, codec, fmt.Errorf("%w: %w: %s", ports.ErrUnsupportedFormat, ErrUnsupportedCodec, entry.Type())
		}
		return trak, entry, codec, nil
	}
	return nil, nil, codecdetect.CodecUnknown, fmt.Errorf("%w: %w", ports.ErrUnsupportedFormat, ErrNoVideoTrack)
}

func newIndex(trak *mp4.TrakBox, entry *mp4.VisualSampleEntryBox, codec codecdetect.Codec) *Index {
	ix := &Index{
		Codec:     codec,
		Width:     int(entry.Width),
		Height:    int(entry.Height),
		Timescale: 1000,
	}
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		ix.Timescale = trak.Mdia.Mdhd.Timescale
	}
	if entry.AvcC != nil {
		for _, sps := range entry.AvcC.SPSnalus {
			ix.header = append(ix.header, 0, 0, 0, 1)
			ix.header = append(ix.header, sps...)
		}
		for _, pps := range entry.AvcC.PPSnalus {
			ix.header = append(ix.header, 0, 0, 0, 1)
			ix.header = append(ix.header, pps...)
		}
	}
	return ix
}

func buildProgressive(f *mp4.File) (*Index, error) {
	if f.Moov == nil {
		return nil, fmt.Errorf("%w: no moov box found", ports.ErrUnsupportedFormat)
	}
	trak, entry, codec, err := videoTrack(f.Moov.Traks)
	if err != nil {
		return nil, err
	}
	ix := newIndex(trak, entry, codec)

	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stts == nil {
		return nil, fmt.Errorf("%w: incomplete sample table", ports.ErrUnsupportedFormat)
	}

	// Build sync sample set (keyframes); no stss means every sample is sync.
	var syncSamples map[uint32]bool
	if stbl.Stss != nil {
		syncSamples = make(map[uint32]bool, len(stbl.Stss.SampleNumber))
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	count := stbl.Stsz.SampleNumber
	ix.Samples = make([]Sample, 0, count)
	for nr := uint32(1); nr <= count; nr++ {
		offset, err := sampleOffset(stbl, nr)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ports.ErrUnsupportedFormat, nr, err)
		}
		dts, dur := stbl.Stts.GetDecodeTime(nr)
		pts := int64(dts)
		if stbl.Ctts != nil {
			pts += int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}
		ix.Samples = append(ix.Samples, Sample{
			DTS:    int64(dts),
			PTS:    pts,
			Dur:    dur,
			Sync:   syncSamples == nil || syncSamples[nr],
			Offset: int64(offset),
			Size:   stbl.Stsz.GetSampleSize(int(nr)),
		})
	}
	return ix, nil
}

// sampleOffset returns the file offset of a progressive sample.
func sampleOffset(stbl *mp4.StblBox, sampleNr uint32) (uint64, error) {
	if stbl.Stsc == nil {
		return 0, fmt.Errorf("missing stsc box")
	}

	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(sampleNr))
	if err != nil {
		return 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var chunkOffset uint64
	switch {
	case stbl.Stco != nil:
		chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
		}
		chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return 0, fmt.Errorf("no stco or co64 box")
	}

	offset := chunkOffset
	for s := uint32(firstSampleInChunk); s < sampleNr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}
	return offset, nil
}

func buildFragmented(f *mp4.File) (*Index, error) {
	if f.Init == nil || f.Init.Moov == nil {
		return nil, fmt.Errorf("%w: no init segment", ports.ErrUnsupportedFormat)
	}
	trak, entry, codec, err := videoTrack(f.Init.Moov.Traks)
	if err != nil {
		return nil, err
	}
	ix := newIndex(trak, entry, codec)
	trackID := trak.Tkhd.TrackID

	var trex *mp4.TrexBox
	if f.Init.Moov.Mvex != nil {
		for _, t := range f.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}

				var baseDecodeTime uint64
				if traf.Tfdt != nil {
					baseDecodeTime = traf.Tfdt.BaseMediaDecodeTime()
				}

				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("%w: get samples: %v", ports.ErrUnsupportedFormat, err)
				}

				currentTime := baseDecodeTime
				for _, s := range samples {
					ix.Samples = append(ix.Samples, Sample{
						DTS:  int64(currentTime),
						PTS:  int64(currentTime) + int64(s.CompositionTimeOffset),
						Dur:  s.Dur,
						Sync: isSync(s.Flags),
						Size: uint32(len(s.Data)),
						data: s.Data,
					})
					currentTime += uint64(s.Dur)
				}
			}
		}
	}
	return ix, nil
}

// isSync reports whether fragment sample flags mark a sync sample.
func isSync(flags uint32) bool {
	const nonSync = 1 << 16
	return flags&nonSync == 0
}

// finish shifts timestamps so the first presented sample has PTS 0 and
// collects the keyframe list.
func (ix *Index) finish() {
	minPTS := ix.Samples[0].PTS
	for _, s := range ix.Samples {
		if s.PTS < minPTS {
			minPTS = s.PTS
		}
	}
	for i := range ix.Samples {
		ix.Samples[i].PTS -= minPTS
		ix.Samples[i].DTS -= minPTS
		if ix.Samples[i].Sync {
			ix.syncs = append(ix.syncs, i)
		}
	}
	if len(ix.syncs) == 0 {
		ix.syncs = []int{0}
	}
}

// FrameCount returns the number of samples.
func (ix *Index) FrameCount() int {
	return len(ix.Samples)
}

// TimeBase returns the track's time base (1/timescale).
func (ix *Index) TimeBase() timebase.Rational {
	return timebase.R(1, int64(ix.Timescale))
}

// FrameRate infers the exact frame rate from the most common sample
// duration, e.g. 60000/1001 for 1001-tick samples in a 60000 timescale.
func (ix *Index) FrameRate() (timebase.Rational, error) {
	counts := make(map[uint32]int)
	var best uint32
	for _, s := range ix.Samples {
		if s.Dur == 0 {
			continue
		}
		counts[s.Dur]++
		if counts[s.Dur] > counts[best] {
			best = s.Dur
		}
	}
	if best == 0 {
		return timebase.Rational{}, fmt.Errorf("%w: no sample durations", ports.ErrUnsupportedFormat)
	}
	return timebase.R(int64(ix.Timescale), int64(best)).Reduce(), nil
}

// Keyframes returns the decode-order indices of sync samples.
func (ix *Index) Keyframes() []int {
	return ix.syncs
}

// KeyframeBefore returns the decode-order index of the last keyframe whose
// presentation time is at or before pts, or the first keyframe.
func (ix *Index) KeyframeBefore(pts int64) int {
	n := sort.Search(len(ix.syncs), func(i int) bool {
		return ix.Samples[ix.syncs[i]].PTS > pts
	})
	if n == 0 {
		return ix.syncs[0]
	}
	return ix.syncs[n-1]
}

// ReadSample returns sample i as an Annex B access unit. Keyframes carry the
// parameter sets so the decoder can start on them.
func (ix *Index) ReadSample(r io.ReadSeeker, i int) ([]byte, error) {
	if i < 0 || i >= len(ix.Samples) {
		return nil, fmt.Errorf("mp4index: sample %d out of range", i)
	}
	s := ix.Samples[i]

	data := s.data
	if data == nil {
		if _, err := r.Seek(s.Offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to sample %d: %w", i, err)
		}
		data = make([]byte, s.Size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("read sample %d: %w", i, err)
		}
	}

	annexB := avccToAnnexB(data)
	if !s.Sync || len(ix.header) == 0 {
		return annexB, nil
	}
	out := make([]byte, len(ix.header)+len(annexB))
	copy(out, ix.header)
	copy(out[len(ix.header):], annexB)
	return out, nil
}

// avccToAnnexB converts AVCC format (length-prefixed NALUs) to Annex B format (start code prefixed)
func avccToAnnexB(data []byte) []byte {
	result := make([]byte, 0, len(data)+16)
	offset := 0

	for offset+4 <= len(data) {
		naluLen := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4

		if naluLen < 0 || offset+naluLen > len(data) {
			break
		}

		result = append(result, 0, 0, 0, 1)
		result = append(result, data[offset:offset+naluLen]...)
		offset += naluLen
	}

	return result
}
