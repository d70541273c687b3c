package entity

import "fmt"

const (
	DescriptorFile = "desc.txt"
	PartName       = "part0"
)

// Descriptor is the single-part desc.txt of a boot animation.
type Descriptor struct {
	Width     int
	Height    int
	Framerate int
	Loop      bool
	Pause     int
	Part      string
}

func NewDescriptor(p Params) Descriptor {
	return Descriptor{
		Width:     p.Width,
		Height:    p.Height,
		Framerate: p.Framerate,
		Loop:      p.Loop,
		Pause:     0,
		Part:      PartName,
	}
}

// String renders the two CRLF terminated lines the boot animation player parses.
func (d Descriptor) String() string {
	loop := 0
	if d.Loop {
		loop = 1
	}
	return fmt.Sprintf("%d %d %d\r\np %d %d %s\r\n", d.Width, d.Height, d.Framerate, loop, d.Pause, d.Part)
}

func (d Descriptor) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
