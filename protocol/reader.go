package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// MaxBulkSize is the default maximum size for bulk strings (512MB, as in Redis)
	MaxBulkSize = 512 * 1024 * 1024

	// MaxArraySize is the default maximum number of array elements
	MaxArraySize = 1024 * 1024

	// readChunkSize caps how much of a bulk string is allocated ahead of
	// the bytes actually arriving
	readChunkSize = 64 * 1024

	// preallocElements caps array preallocation for the same reason
	preallocElements = 1024
)

var crlfBytes = []byte(CRLF)

// ErrProtocol wraps every malformed-input error returned by the Reader
var ErrProtocol = errors.New("protocol error")

func protocolErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// Reader is a streaming RESP protocol reader
type Reader struct {
	br       *bufio.Reader
	maxBulk  int64
	maxArray int64
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br:       bufio.NewReader(r),
		maxBulk:  MaxBulkSize,
		maxArray: MaxArraySize,
	}
}

// SetLimits bounds the bulk string size and array length accepted from now
// on. Zero restores the default for that limit.
func (r *Reader) SetLimits(maxBulk, maxArray int64) {
	if maxBulk <= 0 {
		maxBulk = MaxBulkSize
	}
	if maxArray <= 0 {
		maxArray = MaxArraySize
	}
	r.maxBulk = maxBulk
	r.maxArray = maxArray
}

// Buffered returns the number of bytes already read from the connection
// but not yet consumed. Servers use it to batch replies to pipelined commands.
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

// ReadCommand reads the next client command. Multibulk arrays and inline
// commands are both accepted; blank inline lines are skipped.
func (r *Reader) ReadCommand() (*Command, error) {
	for {
		first, err := r.br.Peek(1)
		if err != nil {
			return nil, err
		}

		if ValueType(first[0]) == TypeArray {
			value, err := r.ReadNext()
			if err != nil {
				return nil, err
			}
			return ParseCommand(value)
		}

		cmd, err := r.readInline()
		if err != nil {
			return nil, err
		}
		if cmd != nil {
			return cmd, nil
		}
	}
}

// readInline reads a whitespace separated command line. It returns a nil
// command for blank lines.
func (r *Reader) readInline() (*Command, error) {
	line, err := r.br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return nil, protocolErrorf("too big inline request")
	}
	if err != nil {
		return nil, err
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	cmd := &Command{
		Name: string(bytes.ToUpper(fields[0])),
		Args: make([][]byte, len(fields)-1),
	}
	for i, f := range fields[1:] {
		cmd.Args[i] = append([]byte(nil), f...)
	}
	return cmd, nil
}

// ReadNext reads the next RESP value from the stream
func (r *Reader) ReadNext() (Value, error) {
	typeByte, err := r.br.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch ValueType(typeByte) {
	case TypeSimpleString, TypeError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: ValueType(typeByte), Data: line}, nil
	case TypeInteger:
		return r.readInteger()
	case TypeBulkString:
		return r.readBulkString()
	case TypeArray:
		return r.readArray()
	default:
		return Value{}, protocolErrorf("unknown RESP type: %q (0x%02x)", typeByte, typeByte)
	}
}

// readInteger reads an integer value
func (r *Reader) readInteger() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	integer, err := parseInt64(line)
	if err != nil {
		return Value{}, protocolErrorf("invalid integer: %s", line)
	}

	return Value{Type: TypeInteger, Integer: integer}, nil
}

// readLength reads a length header and reports whether it denotes null
func (r *Reader) readLength(kind string, max int64) (int64, bool, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, false, err
	}

	length, err := parseInt64(line)
	if err != nil {
		return 0, false, protocolErrorf("invalid %s length: %s", kind, line)
	}

	if length == -1 {
		return 0, true, nil
	}

	if length < 0 || length > max {
		return 0, false, protocolErrorf("invalid %s length: %d", kind, length)
	}

	return length, false, nil
}

// readBulkString reads a bulk string value
func (r *Reader) readBulkString() (Value, error) {
	length, isNull, err := r.readLength("bulk string", r.maxBulk)
	if err != nil {
		return Value{}, err
	}
	if isNull {
		return NullBulkString(), nil
	}

	// Grow with the data received rather than trusting the declared length
	data := make([]byte, 0, min(length, readChunkSize))
	for int64(len(data)) < length {
		n := min(length-int64(len(data)), readChunkSize)
		start := len(data)
		data = append(data, make([]byte, n)...)
		if _, err := io.ReadFull(r.br, data[start:]); err != nil {
			return Value{}, err
		}
	}

	if err := r.expectCRLF(); err != nil {
		return Value{}, err
	}

	return BulkString(data), nil
}

// readArray reads an array value
func (r *Reader) readArray() (Value, error) {
	length, isNull, err := r.readLength("array", r.maxArray)
	if err != nil {
		return Value{}, err
	}
	if isNull {
		return Value{Type: TypeArray, IsNull: true}, nil
	}

	array := make([]Value, 0, min(length, preallocElements))
	for i := int64(0); i < length; i++ {
		value, err := r.ReadNext()
		if err != nil {
			return Value{}, err
		}
		array = append(array, value)
	}

	return Value{Type: TypeArray, Array: array}, nil
}

// readLine reads a line terminated by CRLF
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if !bytes.HasSuffix(line, crlfBytes) {
		return nil, protocolErrorf("missing CRLF terminator")
	}

	return line[:len(line)-2], nil
}

// expectCRLF reads and validates CRLF terminator
func (r *Reader) expectCRLF() error {
	var crlf [2]byte
	if _, err := io.ReadFull(r.br, crlf[:]); err != nil {
		return err
	}

	if crlf[0] != '\r' || crlf[1] != '\n' {
		return protocolErrorf("expected CRLF terminator, got [%d, %d]", crlf[0], crlf[1])
	}

	return nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	neg := false
	i := 0
	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}
		n = n*10 + int64(b[i]-'0')
		if n < 0 {
			return 0, strconv.ErrRange
		}
	}

	if neg {
		return -n, nil
	}
	return n, nil
}
