// Package codecdetect identifies the video codec of an MP4 file from its
// sample entry.
package codecdetect

import (
	"github.com/Eyevinn/mp4ff/mp4"
)

// Codec represents a video codec type.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecVP9     Codec = "vp9"
	CodecUnknown Codec = "unknown"
)

// FromSampleEntry maps a visual sample entry box type to a codec.
func FromSampleEntry(boxType string) Codec {
	switch boxType {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	case "vp09":
		return CodecVP9
	default:
		return CodecUnknown
	}
}

// DetectTrack returns the codec of trak. ok is false when trak is not a
// video track.
func DetectTrack(trak *mp4.TrakBox) (codec Codec, ok bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
		return CodecUnknown, false
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return CodecUnknown, true
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		if c := FromSampleEntry(child.Type()); c != CodecUnknown {
			return c, true
		}
	}
	return CodecUnknown, true
}
