package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a parsed RESP value
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString, TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// BulkString builds a bulk string value
func BulkString(data []byte) Value {
	return Value{Type: TypeBulkString, Data: data}
}

// NullBulkString builds a null bulk string value
func NullBulkString() Value {
	return Value{Type: TypeBulkString, IsNull: true}
}

// Integer builds an integer value
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// Command represents a Redis command parsed from a RESP array
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command
func ParseCommand(v Value) (*Command, error) {
	if v.Type != TypeArray || len(v.Array) == 0 {
		return nil, protocolErrorf("invalid command format")
	}

	if v.Array[0].Type != TypeBulkString || v.Array[0].IsNull {
		return nil, protocolErrorf("command name must be bulk string")
	}

	cmd := &Command{
		Name: strings.ToUpper(string(v.Array[0].Data)),
		Args: make([][]byte, len(v.Array)-1),
	}

	for i, arg := range v.Array[1:] {
		if arg.Type != TypeBulkString {
			return nil, protocolErrorf("command arguments must be bulk strings")
		}
		cmd.Args[i] = arg.Data
	}

	return cmd, nil
}

// String returns a string representation of the command
func (c *Command) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = string(arg)
	}
	return strings.TrimSpace(c.Name + " " + strings.Join(args, " "))
}

// ErrorReply formats err as a single-line RESP error message. Messages that
// already start with an upper-case error code (WRONGTYPE, NOSCRIPT, ERR...)
// are kept as is; anything else gets the generic ERR prefix.
func ErrorReply(err error) string {
	msg := strings.NewReplacer("\r", " ", "\n", " ").Replace(err.Error())
	if hasErrorCode(msg) {
		return msg
	}
	return "ERR " + msg
}

func hasErrorCode(msg string) bool {
	code, _, found := strings.Cut(msg, " ")
	if !found || len(code) < 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
