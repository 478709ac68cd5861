package lua

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/redis-inmemory-kv/protocol"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// DefaultScriptTimeout bounds a single script execution
const DefaultScriptTimeout = 5 * time.Second

// ErrScriptTimeout is returned when a script runs past the engine's timeout
var ErrScriptTimeout = &ScriptError{Message: "ERR Script killed by timeout"}

// ErrNoScript is returned by EvalSHA for unknown hashes
var ErrNoScript = errors.New("NOSCRIPT No matching script. Please use EVAL.")

// ScriptError is returned when a script fails to compile or raises an error
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// StatusReply is a script result that maps to a RESP simple string,
// produced by returning a table with an "ok" field.
type StatusReply string

// ErrorReply is a script result that maps to a RESP error,
// produced by returning a table with an "err" field.
type ErrorReply string

// Engine provides Redis-compatible Lua script execution
type Engine struct {
	storage storage.Storage
	scripts sync.Map // map[string]string - SHA1 -> script content
	timeout time.Duration
}

// NewEngine creates a new Lua execution engine
func NewEngine(stor storage.Storage) *Engine {
	return &Engine{
		storage: stor,
		timeout: DefaultScriptTimeout,
	}
}

// SetTimeout sets the per-script execution limit. Zero disables it.
func (e *Engine) SetTimeout(timeout time.Duration) {
	e.timeout = timeout
}

// Eval executes a Lua script with the given keys and arguments
func (e *Engine) Eval(script string, keys []string, args []string) (interface{}, error) {
	L := newSandbox()
	defer L.Close()

	if e.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		L.SetContext(ctx)
	}

	e.setupRedisAPI(L, keys, args)

	if err := L.DoString(script); err != nil {
		if ctx := L.Context(); ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrScriptTimeout
		}
		return nil, scriptError(err)
	}

	if L.GetTop() == 0 {
		return nil, nil
	}
	return convertLuaValue(L.Get(-1)), nil
}

// EvalSHA executes a previously loaded script by its SHA1 hash
func (e *Engine) EvalSHA(sha1 string, keys []string, args []string) (interface{}, error) {
	script, exists := e.scripts.Load(strings.ToLower(sha1))
	if !exists {
		return nil, ErrNoScript
	}

	return e.Eval(script.(string), keys, args)
}

// LoadScript loads a script and returns its SHA1 hash
func (e *Engine) LoadScript(script string) string {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))
	e.scripts.Store(hash, script)
	return hash
}

// ScriptExists checks if scripts with given SHA1 hashes exist
func (e *Engine) ScriptExists(hashes []string) []bool {
	results := make([]bool, len(hashes))
	for i, hash := range hashes {
		_, exists := e.scripts.Load(strings.ToLower(hash))
		results[i] = exists
	}
	return results
}

// ScriptFlush removes all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Range(func(key, value interface{}) bool {
		e.scripts.Delete(key)
		return true
	})
}

// newSandbox creates a state with only the base, table, string and math
// libraries loaded. io, os and package are not available to scripts.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// The base library still exposes file loaders
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func scriptError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return &ScriptError{Message: apiErr.Object.String()}
	}
	return &ScriptError{Message: err.Error()}
}

// setupRedisAPI configures the Lua state with Redis-compatible functions
func (e *Engine) setupRedisAPI(L *lua.LState, keys []string, args []string) {
	keysTable := L.NewTable()
	for i, key := range keys {
		keysTable.RawSetInt(i+1, lua.LString(key)) // Lua arrays are 1-indexed
	}
	L.SetGlobal("KEYS", keysTable)

	argvTable := L.NewTable()
	for i, arg := range args {
		argvTable.RawSetInt(i+1, lua.LString(arg))
	}
	L.SetGlobal("ARGV", argvTable)

	redisTable := L.NewTable()
	L.SetFuncs(redisTable, map[string]lua.LGFunction{
		"call":         e.redisCall,
		"pcall":        e.redisPCall,
		"status_reply": statusReply,
		"error_reply":  errorReply,
	})
	L.SetGlobal("redis", redisTable)
}

// redisCall implements redis.call(), raising a Lua error on failure
func (e *Engine) redisCall(L *lua.LState) int {
	result, err := e.executeRedisCommand(L)
	if err != nil {
		L.Error(lua.LString(protocol.ErrorReply(err)), 0)
		return 0
	}
	L.Push(convertToLuaValue(L, result))
	return 1
}

// redisPCall implements redis.pcall(), returning failures as {err=...}
func (e *Engine) redisPCall(L *lua.LState) int {
	result, err := e.executeRedisCommand(L)
	if err != nil {
		errTable := L.NewTable()
		errTable.RawSetString("err", lua.LString(protocol.ErrorReply(err)))
		L.Push(errTable)
		return 1
	}
	L.Push(convertToLuaValue(L, result))
	return 1
}

func statusReply(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString("ok", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

func errorReply(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString("err", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

// executeRedisCommand reads the command and arguments off the Lua stack
func (e *Engine) executeRedisCommand(L *lua.LState) (interface{}, error) {
	argc := L.GetTop()
	if argc == 0 {
		return nil, errors.New("ERR Please specify at least one argument for this redis lib call")
	}

	cmdName := L.ToString(1)
	if cmdName == "" {
		return nil, errors.New("ERR Lua redis lib command arguments must be strings or integers")
	}

	args := make([]string, argc-1)
	for i := 2; i <= argc; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString, lua.LNumber:
			args[i-2] = v.String()
		default:
			return nil, errors.New("ERR Lua redis lib command arguments must be strings or integers")
		}
	}

	return e.executeCommand(strings.ToUpper(cmdName), args)
}

// statusOK is the reply of commands that answer +OK
var statusOK = StatusReply("OK")

// executeCommand executes a Redis command against the storage
func (e *Engine) executeCommand(cmd string, args []string) (interface{}, error) {
	switch cmd {
	case "GET":
		if err := arity(cmd, args, 1, 1); err != nil {
			return nil, err
		}
		value, exists, err := e.storage.Get(args[0])
		if err != nil || !exists {
			return nil, err
		}
		return string(value), nil

	case "SET":
		if err := arity(cmd, args, 2, 2); err != nil {
			return nil, err
		}
		if err := e.storage.Set(args[0], []byte(args[1])); err != nil {
			return nil, err
		}
		return statusOK, nil

	case "INCR":
		if err := arity(cmd, args, 1, 1); err != nil {
			return nil, err
		}
		return e.storage.Incr(args[0])

	case "DECR":
		if err := arity(cmd, args, 1, 1); err != nil {
			return nil, err
		}
		return e.storage.Decr(args[0])

	case "INCRBY":
		if err := arity(cmd, args, 2, 2); err != nil {
			return nil, err
		}
		delta, err := parseInt(args[1])
		if err != nil {
			return nil, err
		}
		return e.storage.IncrBy(args[0], delta)

	case "LPUSH":
		if err := arity(cmd, args, 2, -1); err != nil {
			return nil, err
		}
		values := make([][]byte, len(args)-1)
		for i, v := range args[1:] {
			values[i] = []byte(v)
		}
		return e.storage.LPush(args[0], values...)

	case "LRANGE":
		if err := arity(cmd, args, 3, 3); err != nil {
			return nil, err
		}
		start, err := parseInt(args[1])
		if err != nil {
			return nil, err
		}
		stop, err := parseInt(args[2])
		if err != nil {
			return nil, err
		}
		items, err := e.storage.LRange(args[0], start, stop)
		if err != nil {
			return nil, err
		}
		result := make([]interface{}, len(items))
		for i, item := range items {
			result[i] = string(item)
		}
		return result, nil

	case "LLEN":
		if err := arity(cmd, args, 1, 1); err != nil {
			return nil, err
		}
		return e.storage.LLen(args[0])

	case "LREM":
		if err := arity(cmd, args, 3, 3); err != nil {
			return nil, err
		}
		count, err := parseInt(args[1])
		if err != nil {
			return nil, err
		}
		return e.storage.LRem(args[0], count, []byte(args[2]))

	case "DEL":
		if err := arity(cmd, args, 1, -1); err != nil {
			return nil, err
		}
		return e.storage.Del(args...), nil

	case "EXISTS":
		if err := arity(cmd, args, 1, -1); err != nil {
			return nil, err
		}
		return e.storage.Exists(args...), nil

	case "TYPE":
		if err := arity(cmd, args, 1, 1); err != nil {
			return nil, err
		}
		return StatusReply(e.storage.Type(args[0]).String()), nil

	default:
		return nil, fmt.Errorf("ERR Unknown Redis command called from script: %s", strings.ToLower(cmd))
	}
}

// arity checks the argument count. max < 0 means unbounded.
func arity(cmd string, args []string, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd))
	}
	return nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, storage.ErrNotInteger
	}
	return n, nil
}

// convertToLuaValue converts a command reply to a Lua value
func convertToLuaValue(L *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LFalse // Redis nil becomes false in Lua
	case string:
		return lua.LString(v)
	case int64:
		return lua.LNumber(v)
	case StatusReply:
		t := L.NewTable()
		t.RawSetString("ok", lua.LString(v))
		return t
	case []interface{}:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, convertToLuaValue(L, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// convertLuaValue converts a script's return value to a Go value.
// Numbers are truncated to integers, true becomes 1 and false nil. Tables
// with an "ok" or "err" field become status and error replies; other
// tables are read as arrays up to the first nil.
func convertLuaValue(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case lua.LBool:
		if v {
			return int64(1)
		}
		return nil
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return int64(v)
	case *lua.LTable:
		if errField, ok := v.RawGetString("err").(lua.LString); ok {
			return ErrorReply(errField)
		}
		if okField, ok := v.RawGetString("ok").(lua.LString); ok {
			return StatusReply(okField)
		}
		result := []interface{}{}
		for i := 1; ; i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			result = append(result, convertLuaValue(item))
		}
		return result
	default:
		return nil
	}
}
