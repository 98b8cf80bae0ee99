package ports

// FrameSink persists exported frames.
type FrameSink interface {
	// SaveFrame writes f and returns the path it was written to.
	SaveFrame(f *Frame, info MediaInfo) (string, error)
}
