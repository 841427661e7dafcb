package capture

// Block is one hardware callback worth of interleaved samples.
type Block struct {
	Samples  []float32
	Channels int
}

func (b Block) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Sink receives captured blocks in production order.
type Sink interface {
	Write(b Block) error
	Close() error
}
