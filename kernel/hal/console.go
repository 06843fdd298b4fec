// Package hal collects the few hardware-adjacent helpers the core needs as
// a diagnostics sink. It does not drive a real serial UART or framebuffer
// driver — those are out of scope for this core — it only gives kfmt
// somewhere to write to once boot code hands over a VGA text-mode buffer
// address.
package hal

import "unsafe"

// Each text-mode framebuffer cell is a (character, attribute) byte pair:
// even byte offsets hold the glyph, odd offsets hold the attribute
// (foreground/background color). defaultAttr is the attribute putCell writes.
const (
	defaultAttr = byte(0x07) // light grey on black
)

// VGAConsole is an io.Writer that renders bytes into a VGA text-mode
// framebuffer, scrolling the buffer up by one row once the cursor reaches
// the last column of the last row.
type VGAConsole struct {
	cols, rows int
	fbAddr     uintptr
	col, row   int
}

// Init attaches the console to the framebuffer at fbAddr, sized cols x rows
// cells. Called once by boot code with the address it identity-mapped for
// the VGA text-mode window.
func (c *VGAConsole) Init(cols, rows int, fbAddr uintptr) {
	c.cols, c.rows, c.fbAddr = cols, rows, fbAddr
	c.col, c.row = 0, 0
}

// Write implements io.Writer, interpreting '\n' as a move to the start of
// the next row and scrolling the framebuffer when the console is full.
func (c *VGAConsole) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			c.col = 0
			c.row++
		} else {
			c.putCell(c.row, c.col, b)
			c.col++
			if c.col == c.cols {
				c.col = 0
				c.row++
			}
		}

		if c.row == c.rows {
			c.scroll()
			c.row = c.rows - 1
		}
	}
	return len(p), nil
}

func (c *VGAConsole) cellAddr(row, col int) uintptr {
	return c.fbAddr + uintptr(2*(row*c.cols+col))
}

func (c *VGAConsole) putCell(row, col int, ch byte) {
	addr := c.cellAddr(row, col)
	*(*byte)(unsafe.Pointer(addr)) = ch
	*(*byte)(unsafe.Pointer(addr + 1)) = defaultAttr
}

// scroll shifts every row up by one and blanks the last row.
func (c *VGAConsole) scroll() {
	rowBytes := uintptr(2 * c.cols)
	for row := 1; row < c.rows; row++ {
		src := c.cellAddr(row, 0)
		dst := c.cellAddr(row-1, 0)
		for off := uintptr(0); off < rowBytes; off++ {
			*(*byte)(unsafe.Pointer(dst + off)) = *(*byte)(unsafe.Pointer(src + off))
		}
	}
	blankRow := c.rows - 1
	for col := 0; col < c.cols; col++ {
		c.putCell(blankRow, col, 0)
	}
}
