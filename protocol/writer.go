package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer provides buffered writing of RESP protocol messages.
// Nothing reaches the underlying writer until Flush is called.
type Writer struct {
	bw  *bufio.Writer
	num []byte
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw:  bufio.NewWriter(w),
		num: make([]byte, 0, 20),
	}
}

// WriteValue writes a RESP value to the output stream
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return w.WriteSimpleString(string(v.Data))
	case TypeError:
		return w.WriteError(string(v.Data))
	case TypeInteger:
		return w.WriteInteger(v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return w.WriteNullBulkString()
		}
		return w.WriteBulkString(v.Data)
	case TypeArray:
		if v.IsNull {
			return w.WriteNullArray()
		}
		return w.WriteArray(v.Array)
	default:
		return fmt.Errorf("unsupported value type: %c", v.Type)
	}
}

// writeLine writes prefix, body and CRLF
func (w *Writer) writeLine(prefix byte, body string) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(body); err != nil {
		return err
	}
	_, err := w.bw.WriteString(CRLF)
	return err
}

// writeHeader writes a length or integer line without allocating
func (w *Writer) writeHeader(prefix byte, n int64) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	w.num = strconv.AppendInt(w.num[:0], n, 10)
	if _, err := w.bw.Write(w.num); err != nil {
		return err
	}
	_, err := w.bw.WriteString(CRLF)
	return err
}

// WriteSimpleString writes a simple string
func (w *Writer) WriteSimpleString(s string) error {
	return w.writeLine(byte(TypeSimpleString), s)
}

// WriteError writes an error message
func (w *Writer) WriteError(msg string) error {
	return w.writeLine(byte(TypeError), msg)
}

// WriteInteger writes an integer
func (w *Writer) WriteInteger(n int64) error {
	return w.writeHeader(byte(TypeInteger), n)
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	if err := w.writeHeader(byte(TypeBulkString), int64(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	_, err := w.bw.WriteString(CRLF)
	return err
}

// WriteNullBulkString writes a null bulk string
func (w *Writer) WriteNullBulkString() error {
	return w.writeHeader(byte(TypeBulkString), -1)
}

// WriteArray writes an array of values
func (w *Writer) WriteArray(values []Value) error {
	if err := w.writeHeader(byte(TypeArray), int64(len(values))); err != nil {
		return err
	}
	for _, value := range values {
		if err := w.WriteValue(value); err != nil {
			return err
		}
	}
	return nil
}

// WriteBulkStrings writes an array of bulk strings
func (w *Writer) WriteBulkStrings(items [][]byte) error {
	if err := w.writeHeader(byte(TypeArray), int64(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.WriteBulkString(item); err != nil {
			return err
		}
	}
	return nil
}

// WriteNullArray writes a null array
func (w *Writer) WriteNullArray() error {
	return w.writeHeader(byte(TypeArray), -1)
}

// WriteCommand writes a Redis command as a RESP array
func (w *Writer) WriteCommand(cmd string, args ...string) error {
	if err := w.writeHeader(byte(TypeArray), int64(1+len(args))); err != nil {
		return err
	}
	if err := w.WriteBulkString([]byte(cmd)); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteBulkString([]byte(arg)); err != nil {
			return err
		}
	}
	return nil
}

// WriteOK writes a simple "OK" response
func (w *Writer) WriteOK() error {
	return w.WriteSimpleString("OK")
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Reset resets the writer to write to a new underlying writer
func (w *Writer) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}
