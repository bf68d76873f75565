package opl

// Handler is the seam between the Chip front end and an emulation core.
// Both cores implement the same register semantics and must produce the
// same output for the same write sequence.
type Handler interface {
	// WriteAddr latches an address written to a port and returns the
	// resolved register address (bank in bit 8).
	WriteAddr(port uint32, val uint8) uint32
	// WriteReg writes a value to a resolved register address.
	WriteReg(addr uint32, val uint8)
	// Generate fills buf with samples (interleaved L/R for stereo cores).
	Generate(buf []int16)
	// Init resets the core to power-on state for the given output rate.
	Init(rate int) error
}

// coreOptions carries the construction-time settings shared by both cores.
type coreOptions struct {
	opl3    bool
	freeRun bool // Skip phase reset on key-on
}

// newHandler builds the handler for a configuration. Dual OPL2 composes
// two mono cores of the selected backend.
func newHandler(cfg Config) (Handler, error) {
	opts := coreOptions{opl3: cfg.Type == TypeOPL3, freeRun: cfg.FreeRunPhase}

	single := func() (Handler, error) {
		switch cfg.Backend {
		case BackendDOSBox:
			return newDOSBoxCore(opts), nil
		case BackendMAME:
			return newMAMECore(opts), nil
		}
		return nil, ErrUnknownBackend
	}

	switch cfg.Type {
	case TypeOPL2, TypeOPL3:
		return single()
	case TypeDualOPL2:
		left, err := single()
		if err != nil {
			return nil, err
		}
		right, _ := single()
		return newDualHandler(left, right), nil
	}
	return nil, ErrUnsupportedType
}

// dualScratch is the per-side render chunk for dual OPL2, in samples.
const dualScratch = 1024

// dualHandler drives two OPL2 cores as a stereo pair: the first core is
// the left output, the second the right. Address bit 8 selects the core.
type dualHandler struct {
	side  [2]Handler
	left  []int16
	right []int16
}

func newDualHandler(left, right Handler) *dualHandler {
	return &dualHandler{
		side:  [2]Handler{left, right},
		left:  make([]int16, dualScratch),
		right: make([]int16, dualScratch),
	}
}

func (d *dualHandler) WriteAddr(port uint32, val uint8) uint32 {
	index := (port >> 1) & 1
	return index<<8 | d.side[index].WriteAddr(port&1, val)&0xFF
}

func (d *dualHandler) WriteReg(addr uint32, val uint8) {
	d.side[(addr>>8)&1].WriteReg(addr&0xFF, val)
}

func (d *dualHandler) Generate(buf []int16) {
	frames := len(buf) / 2
	for done := 0; done < frames; {
		n := frames - done
		if n > dualScratch {
			n = dualScratch
		}
		d.side[0].Generate(d.left[:n])
		d.side[1].Generate(d.right[:n])
		out := buf[done*2:]
		for i := 0; i < n; i++ {
			out[i*2] = d.left[i]
			out[i*2+1] = d.right[i]
		}
		done += n
	}
}

func (d *dualHandler) Init(rate int) error {
	for _, h := range d.side {
		if err := h.Init(rate); err != nil {
			return err
		}
	}
	return nil
}
