// Package kfmt provides an allocation-free Printf implementation suitable
// for use before the Go runtime's heap is available — which, in this
// kernel, is the entire lifetime of kernel/mem/pmm.Allocator plus anything
// that runs before it. kfmt never imports "fmt": doing so would pull in
// reflection-based formatting that allocates.
package kfmt

import (
	"io"
	"unsafe"
)

// maxNumBufSize bounds the scratch buffer used to format a single integer.
const maxNumBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueBytes       = []byte("true")
	falseBytes      = []byte("false")

	numBuf = make([]byte, maxNumBufSize)

	// oneByte is a shared single-byte scratch buffer; writing through it
	// avoids the allocation that slicing a fresh []byte per character
	// would trigger.
	oneByte = []byte{0}

	// preInitLog buffers Printf output recorded before SetOutputSink is
	// called (i.e. before a console driver attaches).
	preInitLog ringBuffer

	outputSink io.Writer
)

// SetOutputSink directs all future Printf output to w and drains whatever
// preInitLog accumulated so far into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &preInitLog)
	}
}

// Printf supports a minimal subset of verbs against outputSink (or, before
// one is attached, a ring buffer): %s, %d, %o, %x, %t, with an optional
// decimal width prefix. There is deliberately no %v/%p/%f — those require
// reflect or floating point, neither of which this kernel can afford this
// early.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf is Printf with an explicit destination.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		ch                           byte
		argIndex                     int
		blockStart, blockEnd, padLen int
		n                            = len(format)
	)

	for blockEnd < n {
		ch = format[blockEnd]
		if ch != '%' {
			blockEnd++
			continue
		}

		writeRange(w, format, blockStart, blockEnd)

		padLen = 0
		blockEnd++
	parseVerb:
		for ; blockEnd < n; blockEnd++ {
			ch = format[blockEnd]
			switch {
			case ch == '%':
				writeByte(w, '%')
				break parseVerb
			case ch >= '0' && ch <= '9':
				padLen = padLen*10 + int(ch-'0')
				continue
			case ch == 'd' || ch == 'x' || ch == 'o' || ch == 's' || ch == 't':
				if argIndex >= len(args) {
					writeBytes(w, errMissingArg)
					break parseVerb
				}
				switch ch {
				case 'o':
					writeInt(w, args[argIndex], 8, padLen)
				case 'd':
					writeInt(w, args[argIndex], 10, padLen)
				case 'x':
					writeInt(w, args[argIndex], 16, padLen)
				case 's':
					writeString(w, args[argIndex], padLen)
				case 't':
					writeBool(w, args[argIndex])
				}
				argIndex++
				break parseVerb
			default:
				writeBytes(w, errNoVerb)
				break parseVerb
			}
		}
		blockStart, blockEnd = blockEnd+1, blockEnd+1
	}

	writeRange(w, format, blockStart, blockEnd)

	for ; argIndex < len(args); argIndex++ {
		writeBytes(w, errExtraArg)
	}
}

func writeRange(w io.Writer, s string, start, end int) {
	for i := start; i < end; i++ {
		writeByte(w, s[i])
	}
}

func writeBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	if !ok {
		writeBytes(w, errWrongArgType)
		return
	}
	if b {
		writeBytes(w, trueBytes)
	} else {
		writeBytes(w, falseBytes)
	}
}

func writeString(w io.Writer, v interface{}, padLen int) {
	switch s := v.(type) {
	case string:
		padWith(w, ' ', padLen-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		padWith(w, ' ', padLen-len(s))
		writeBytes(w, s)
	default:
		writeBytes(w, errWrongArgType)
	}
}

func padWith(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		writeByte(w, ch)
	}
}

// writeInt formats v (any built-in integer type) in the given base,
// left-padded to padLen, writing the result to w.
func writeInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		sval      int64
		uval      uint64
		divider   uint64
		padCh     byte
		left, end int
		right     int
	)

	if padLen >= maxNumBufSize {
		padLen = maxNumBufSize - 1
	}

	switch base {
	case 8:
		divider, padCh = 8, '0'
	case 10:
		divider, padCh = 10, ' '
	case 16:
		divider, padCh = 16, '0'
	}

	switch tv := v.(type) {
	case uint8:
		uval = uint64(tv)
	case uint16:
		uval = uint64(tv)
	case uint32:
		uval = uint64(tv)
	case uint64:
		uval = tv
	case uintptr:
		uval = uint64(tv)
	case int8:
		sval = int64(tv)
	case int16:
		sval = int64(tv)
	case int32:
		sval = int64(tv)
	case int64:
		sval = tv
	case int:
		sval = int64(tv)
	default:
		writeBytes(w, errWrongArgType)
		return
	}

	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for right < maxNumBufSize {
		rem := uval % divider
		if rem < 10 {
			numBuf[right] = byte(rem) + '0'
		} else {
			numBuf[right] = byte(rem-10) + 'a'
		}
		right++
		uval /= divider
		if uval == 0 {
			break
		}
	}

	for ; right-left < padLen; right++ {
		numBuf[right] = padCh
	}

	if sval < 0 {
		for end = right - 1; numBuf[end] == ' '; end-- {
		}
		if end == right-1 {
			right++
		}
		numBuf[end+1] = '-'
	}

	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		numBuf[left], numBuf[right] = numBuf[right], numBuf[left]
	}

	writeBytes(w, numBuf[0:end])
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	writeBytes(w, oneByte)
}

// writeBytes is a proxy that hides p from escape analysis: without it, the
// as-yet-unresolved io.Writer call causes the compiler to flag p as
// escaping, which allocates — fatal before kernel/mem/pmm is live.
func writeBytes(w io.Writer, p []byte) {
	realWrite(w, noEscape(unsafe.Pointer(&p)))
}

func realWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		preInitLog.Write(p)
	}
}

//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
