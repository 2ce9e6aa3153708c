package payload

import (
	"fmt"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/memory"
)

// Console prints on a polled UART.
type Console struct {
	bus  memory.Bus
	uart chip.UART
}

func NewConsole(bus memory.Bus, uart chip.UART) *Console {
	return &Console{bus: bus, uart: uart}
}

func (c *Console) putc(b byte) {
	for c.bus.Read32(c.uart.Status())&chip.UARTTransmitIdle == 0 {
	}
	c.bus.Write32(c.uart.Data(), uint32(b))
}

// Write implements io.Writer. It never fails.
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			c.putc('\r')
		}
		c.putc(b)
	}
	return len(p), nil
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c, format, args...)
}
