// Package brotherql builds Brother QL raster command streams and parses printer status replies.
package brotherql

import (
	"encoding/binary"

	"github.com/nantokaworks/ql-label-printer/internal/labels"
)

// Control characters
const (
	Esc = 0x1B
	// Print with feed; ends the last page of a job.
	PrintFeed = 0x1A
)

// Media types sent in the print information command.
const (
	MediaEndless byte = 0x0A
	MediaDieCut  byte = 0x0B
)

// print information valid flags
const (
	piKind    = 0x02
	piWidth   = 0x04
	piLength  = 0x08
	piQuality = 0x40
	piRecover = 0x80
)

// expanded mode flags
const (
	expTwoColor = 0x01
	expCutAtEnd = 0x08
	expHighRes  = 0x40
)

// Clears whatever is left in the printer's receive buffer.
func invalidate(n int) []byte {
	return make([]byte, n)
}

func initialize() []byte {
	return []byte{Esc, 0x40}
}

// Switches the printer from ESC/P to raster mode.
func switchToRaster() []byte {
	return []byte{Esc, 0x69, 0x61, 0x01}
}

func statusRequest() []byte {
	return []byte{Esc, 0x69, 0x53}
}

// Announces media and the number of raster lines that follow.
func printInformation(p labels.LabelProfile, lines int) []byte {
	mtype, length := MediaEndless, 0
	if !p.Endless() {
		mtype, length = MediaDieCut, p.TapeLengthMM
	}
	cmd := []byte{
		Esc, 0x69, 0x7A,
		piRecover | piKind | piWidth | piLength | piQuality,
		mtype,
		byte(p.TapeWidthMM),
		byte(length),
		0, 0, 0, 0,
		0x00, // starting page
		0x00,
	}
	binary.LittleEndian.PutUint32(cmd[7:11], uint32(lines))
	return cmd
}

func autoCut(on bool) []byte {
	var v byte
	if on {
		v = 0x40
	}
	return []byte{Esc, 0x69, 0x4D, v}
}

// Cut after every n labels.
func cutEvery(n int) []byte {
	return []byte{Esc, 0x69, 0x41, byte(n)}
}

func expandedMode(flags byte) []byte {
	return []byte{Esc, 0x69, 0x4B, flags}
}

// Feed margin in dots.
func margins(dots int) []byte {
	cmd := []byte{Esc, 0x69, 0x64, 0, 0}
	binary.LittleEndian.PutUint16(cmd[3:], uint16(dots))
	return cmd
}

// Enables TIFF (PackBits) compression of raster lines.
func compression(on bool) []byte {
	var v byte
	if on {
		v = 0x02
	}
	return []byte{0x4D, v}
}

// Monochrome raster line.
func rasterLine(data []byte) []byte {
	return append([]byte{0x67, 0x00, byte(len(data))}, data...)
}

// Two-colour raster line; plane 0x01 is black, 0x02 is red.
func colorRasterLine(plane byte, data []byte) []byte {
	return append([]byte{0x77, plane, byte(len(data))}, data...)
}
