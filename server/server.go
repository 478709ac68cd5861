package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/raniellyferreira/redis-inmemory-kv/lua"
	"github.com/raniellyferreira/redis-inmemory-kv/protocol"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// DefaultReadTimeout is how long an idle client may stay connected
const DefaultReadTimeout = 30 * time.Second

// Request limits for clients that have not authenticated yet, as in Redis
const (
	unauthMaxBulk  = 16 * 1024
	unauthMaxArray = 10
)

// Logger interface for server logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for server metrics
type MetricsCollector interface {
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordError(errorType string)
	RecordConnection()
}

// Server provides Redis protocol server functionality
type Server struct {
	storage storage.Storage
	lua     *lua.Engine

	// Server configuration
	addr        string
	password    string
	readTimeout time.Duration
	runID       string
	startedAt   time.Time

	logger  Logger
	metrics MetricsCollector

	// Connection management
	listener net.Listener
	clients  sync.Map // map[net.Conn]*Client

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
}

// Client represents a connected Redis client
type Client struct {
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	server *Server

	// Client state
	authenticated bool
	name          string
	lastCmd       time.Time

	// Control
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a new Redis protocol server
func NewServer(addr string, stor storage.Storage) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		storage:     stor,
		lua:         lua.NewEngine(stor),
		addr:        addr,
		readTimeout: DefaultReadTimeout,
		runID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		logger:      &nopLogger{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetPassword sets the authentication password for the server
func (s *Server) SetPassword(password string) {
	s.password = password
}

// SetReadTimeout sets the idle timeout for client connections. Zero disables it.
func (s *Server) SetReadTimeout(timeout time.Duration) {
	s.readTimeout = timeout
}

// SetScriptTimeout sets the execution limit for EVAL and EVALSHA. Zero disables it.
func (s *Server) SetScriptTimeout(timeout time.Duration) {
	s.lua.SetTimeout(timeout)
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics sets the metrics collector
func (s *Server) SetMetrics(metrics MetricsCollector) {
	s.metrics = metrics
}

// Start starts the Redis server
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.startedAt = time.Now()
	s.logger.Info("Server listening", "addr", s.listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop stops the Redis server
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	// Close all client connections
	s.clients.Range(func(key, value interface{}) bool {
		if client, ok := value.(*Client); ok {
			client.Close()
		}
		return true
	})

	s.wg.Wait()
	s.logger.Info("Server stopped", "addr", s.Addr())
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// RunID returns the random identifier generated for this server instance
func (s *Server) RunID() string {
	return s.runID
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connected_clients": s.clientCount(),
		"total_commands":    s.commandCount.Load(),
		"total_errors":      s.errorCount.Load(),
		"total_connections": s.connCount.Load(),
	}
}

func (s *Server) clientCount() int {
	count := 0
	s.clients.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// acceptConnections accepts new client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return // Server is shutting down
			}
			s.logger.Error("Accept failed", "error", err)
			continue
		}

		s.handleNewClient(conn)
	}
}

// handleNewClient handles a new client connection
func (s *Server) handleNewClient(conn net.Conn) {
	s.connCount.Add(1)
	if s.metrics != nil {
		s.metrics.RecordConnection()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	client := &Client{
		conn:          conn,
		reader:        protocol.NewReader(conn),
		writer:        protocol.NewWriter(conn),
		server:        s,
		authenticated: s.password == "", // Auto-authenticated if no password
		lastCmd:       time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}

	if !client.authenticated {
		client.reader.SetLimits(unauthMaxBulk, unauthMaxArray)
	}

	s.clients.Store(conn, client)
	s.logger.Debug("Client connected", "remote", conn.RemoteAddr().String())

	s.wg.Add(1)
	go client.handle()
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		c.server.clients.Delete(c.conn)
	})
}

// handle handles client requests
func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if c.server.readTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.server.readTimeout))
		}

		cmd, err := c.reader.ReadCommand()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.lastCmd = time.Now()
		quit := c.executeCommand(cmd)

		// Replies to pipelined commands go out in one write.
		if quit || c.reader.Buffered() == 0 {
			if err := c.writer.Flush(); err != nil {
				c.server.logger.Debug("Write failed", "remote", c.conn.RemoteAddr().String(), "error", err)
				return
			}
		}
		if quit {
			return
		}
	}
}

func (c *Client) handleReadError(err error) {
	remote := c.conn.RemoteAddr().String()

	var netErr net.Error
	switch {
	case err == io.EOF, c.ctx.Err() != nil:
		c.server.logger.Debug("Client disconnected", "remote", remote)
	case errors.As(err, &netErr) && netErr.Timeout():
		c.server.logger.Debug("Client idle timeout", "remote", remote)
	case errors.Is(err, protocol.ErrProtocol):
		c.server.logger.Error("Protocol error", "remote", remote, "error", err)
		c.writeError("ERR Protocol error: " + strings.TrimPrefix(err.Error(), protocol.ErrProtocol.Error()+": "))
		c.writer.Flush()
	default:
		c.server.logger.Debug("Read failed", "remote", remote, "error", err)
	}
}

// executeCommand executes a Redis command and reports whether the
// connection should be closed afterwards
func (c *Client) executeCommand(cmd *protocol.Command) bool {
	c.server.commandCount.Add(1)
	start := time.Now()
	defer func() {
		if c.server.metrics != nil {
			c.server.metrics.RecordCommandProcessed(cmd.Name, time.Since(start))
		}
	}()

	// Check authentication first
	if !c.authenticated && cmd.Name != "AUTH" && cmd.Name != "QUIT" {
		c.writeError("NOAUTH Authentication required.")
		return false
	}

	switch cmd.Name {
	case "AUTH":
		c.handleAuth(cmd)
	case "PING":
		c.handlePing(cmd)
	case "ECHO":
		c.handleEcho(cmd)
	case "QUIT":
		c.writer.WriteOK()
		return true
	case "GET":
		c.handleGet(cmd)
	case "SET":
		c.handleSet(cmd)
	case "INCR":
		c.handleIncr(cmd)
	case "INCRBY":
		c.handleIncrBy(cmd)
	case "DECR":
		c.handleDecr(cmd)
	case "LPUSH":
		c.handleLPush(cmd)
	case "LRANGE":
		c.handleLRange(cmd)
	case "LLEN":
		c.handleLLen(cmd)
	case "LREM":
		c.handleLRem(cmd)
	case "DEL":
		c.handleDel(cmd)
	case "EXISTS":
		c.handleExists(cmd)
	case "TYPE":
		c.handleType(cmd)
	case "KEYS":
		c.handleKeys(cmd)
	case "DBSIZE":
		c.handleDBSize(cmd)
	case "FLUSHALL", "FLUSHDB":
		c.handleFlushAll(cmd)
	case "INFO":
		c.handleInfo(cmd)
	case "EVAL":
		c.handleEval(cmd)
	case "EVALSHA":
		c.handleEvalSHA(cmd)
	case "SCRIPT":
		c.handleScript(cmd)
	case "COMMAND":
		c.writer.WriteBulkStrings(nil)
	case "CLIENT":
		c.handleClient(cmd)
	case "HELLO":
		c.writeError("NOPROTO unsupported protocol version")
	default:
		c.writeError(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd.Name)))
	}
	return false
}

// Command handlers

func (c *Client) checkArity(cmd *protocol.Command, ok bool) bool {
	if !ok {
		c.writeError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd.Name)))
	}
	return ok
}

func (c *Client) handleAuth(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}

	if c.server.password == "" {
		c.writeError("ERR Client sent AUTH, but no password is set")
		return
	}

	if string(cmd.Args[0]) == c.server.password {
		c.authenticated = true
		c.reader.SetLimits(0, 0)
		c.writer.WriteOK()
	} else {
		c.writeError("WRONGPASS invalid username-password pair")
	}
}

func (c *Client) handlePing(cmd *protocol.Command) {
	switch len(cmd.Args) {
	case 0:
		c.writer.WriteSimpleString("PONG")
	case 1:
		c.writer.WriteBulkString(cmd.Args[0])
	default:
		c.checkArity(cmd, false)
	}
}

func (c *Client) handleEcho(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}
	c.writer.WriteBulkString(cmd.Args[0])
}

func (c *Client) handleGet(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}

	value, exists, err := c.server.storage.Get(string(cmd.Args[0]))
	if err != nil {
		c.writeStorageError(err)
		return
	}
	if !exists {
		c.writer.WriteNullBulkString()
		return
	}
	c.writer.WriteBulkString(value)
}

func (c *Client) handleSet(cmd *protocol.Command) {
	// SET options (EX, PX, NX, XX) are not supported.
	if !c.checkArity(cmd, len(cmd.Args) == 2) {
		return
	}

	if err := c.server.storage.Set(string(cmd.Args[0]), cmd.Args[1]); err != nil {
		c.writeStorageError(err)
		return
	}
	c.writer.WriteOK()
}

func (c *Client) handleIncr(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}
	c.writeIntegerResult(c.server.storage.Incr(string(cmd.Args[0])))
}

func (c *Client) handleIncrBy(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 2) {
		return
	}

	delta, ok := c.parseInt(cmd.Args[1])
	if !ok {
		return
	}
	c.writeIntegerResult(c.server.storage.IncrBy(string(cmd.Args[0]), delta))
}

func (c *Client) handleDecr(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}
	c.writeIntegerResult(c.server.storage.Decr(string(cmd.Args[0])))
}

func (c *Client) handleLPush(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) >= 2) {
		return
	}
	c.writeIntegerResult(c.server.storage.LPush(string(cmd.Args[0]), cmd.Args[1:]...))
}

func (c *Client) handleLRange(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 3) {
		return
	}

	start, ok := c.parseInt(cmd.Args[1])
	if !ok {
		return
	}
	stop, ok := c.parseInt(cmd.Args[2])
	if !ok {
		return
	}

	items, err := c.server.storage.LRange(string(cmd.Args[0]), start, stop)
	if err != nil {
		c.writeStorageError(err)
		return
	}
	c.writer.WriteBulkStrings(items)
}

func (c *Client) handleLLen(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}
	c.writeIntegerResult(c.server.storage.LLen(string(cmd.Args[0])))
}

func (c *Client) handleLRem(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 3) {
		return
	}

	count, ok := c.parseInt(cmd.Args[1])
	if !ok {
		return
	}
	c.writeIntegerResult(c.server.storage.LRem(string(cmd.Args[0]), count, cmd.Args[2]))
}

func (c *Client) handleDel(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) > 0) {
		return
	}
	c.writer.WriteInteger(c.server.storage.Del(argStrings(cmd.Args)...))
}

func (c *Client) handleExists(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) > 0) {
		return
	}
	c.writer.WriteInteger(c.server.storage.Exists(argStrings(cmd.Args)...))
}

func (c *Client) handleType(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}
	c.writer.WriteSimpleString(c.server.storage.Type(string(cmd.Args[0])).String())
}

func (c *Client) handleKeys(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 1) {
		return
	}

	keys := c.server.storage.Keys(string(cmd.Args[0]))
	sort.Strings(keys)
	items := make([][]byte, len(keys))
	for i, key := range keys {
		items[i] = []byte(key)
	}
	c.writer.WriteBulkStrings(items)
}

func (c *Client) handleDBSize(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) == 0) {
		return
	}
	c.writer.WriteInteger(c.server.storage.KeyCount())
}

func (c *Client) handleFlushAll(cmd *protocol.Command) {
	// FLUSHALL ASYNC|SYNC are accepted and behave the same
	if !c.checkArity(cmd, len(cmd.Args) <= 1) {
		return
	}
	if err := c.server.storage.FlushAll(); err != nil {
		c.writeStorageError(err)
		return
	}
	c.writer.WriteOK()
}

func (c *Client) handleInfo(cmd *protocol.Command) {
	section := "all"
	if len(cmd.Args) > 0 {
		section = strings.ToLower(string(cmd.Args[0]))
	}
	c.writer.WriteBulkString([]byte(c.server.info(section)))
}

// info renders the INFO reply for the given section
func (s *Server) info(section string) string {
	var b strings.Builder
	all := section == "all" || section == "everything" || section == "default"

	if all || section == "server" {
		b.WriteString("# Server\r\n")
		fmt.Fprintf(&b, "redis_mode:standalone\r\n")
		fmt.Fprintf(&b, "run_id:%s\r\n", s.runID)
		fmt.Fprintf(&b, "tcp_port:%s\r\n", portOf(s.Addr()))
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(s.startedAt).Seconds()))
		fmt.Fprintf(&b, "go_version:%s\r\n", runtime.Version())
		b.WriteString("\r\n")
	}

	if all || section == "clients" {
		b.WriteString("# Clients\r\n")
		fmt.Fprintf(&b, "connected_clients:%d\r\n", s.clientCount())
		b.WriteString("\r\n")
	}

	if all || section == "memory" {
		b.WriteString("# Memory\r\n")
		fmt.Fprintf(&b, "used_memory:%d\r\n", s.storage.MemoryUsage())
		b.WriteString("\r\n")
	}

	if all || section == "stats" {
		b.WriteString("# Stats\r\n")
		fmt.Fprintf(&b, "total_connections_received:%d\r\n", s.connCount.Load())
		fmt.Fprintf(&b, "total_commands_processed:%d\r\n", s.commandCount.Load())
		fmt.Fprintf(&b, "total_error_replies:%d\r\n", s.errorCount.Load())
		b.WriteString("\r\n")
	}

	if all || section == "keyspace" {
		b.WriteString("# Keyspace\r\n")
		if keys := s.storage.KeyCount(); keys > 0 {
			fmt.Fprintf(&b, "db0:keys=%d,expires=0,avg_ttl=0\r\n", keys)
		}
	}

	return b.String()
}

func portOf(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "0"
	}
	return port
}

func (c *Client) handleClient(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) >= 1) {
		return
	}

	switch strings.ToUpper(string(cmd.Args[0])) {
	case "SETNAME":
		if !c.checkArity(cmd, len(cmd.Args) == 2) {
			return
		}
		c.name = string(cmd.Args[1])
		c.writer.WriteOK()
	case "GETNAME":
		if c.name == "" {
			c.writer.WriteNullBulkString()
		} else {
			c.writer.WriteBulkString([]byte(c.name))
		}
	case "SETINFO":
		c.writer.WriteOK()
	default:
		c.writeError(fmt.Sprintf("ERR unknown subcommand '%s'", string(cmd.Args[0])))
	}
}

// parseScriptArgs splits EVAL/EVALSHA arguments into keys and argv
func (c *Client) parseScriptArgs(cmd *protocol.Command) ([]string, []string, bool) {
	numKeys, err := strconv.Atoi(string(cmd.Args[1]))
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return nil, nil, false
	}

	if numKeys < 0 || len(cmd.Args) < 2+numKeys {
		c.writeError("ERR Number of keys can't be negative or greater than args")
		return nil, nil, false
	}

	keys := argStrings(cmd.Args[2 : 2+numKeys])
	args := argStrings(cmd.Args[2+numKeys:])
	return keys, args, true
}

func (c *Client) handleEval(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) >= 2) {
		return
	}

	keys, args, ok := c.parseScriptArgs(cmd)
	if !ok {
		return
	}

	result, err := c.server.lua.Eval(string(cmd.Args[0]), keys, args)
	if err != nil {
		c.writeError(protocol.ErrorReply(err))
		return
	}
	c.writeResult(result)
}

func (c *Client) handleEvalSHA(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) >= 2) {
		return
	}

	keys, args, ok := c.parseScriptArgs(cmd)
	if !ok {
		return
	}

	result, err := c.server.lua.EvalSHA(string(cmd.Args[0]), keys, args)
	if err != nil {
		c.writeError(protocol.ErrorReply(err))
		return
	}
	c.writeResult(result)
}

func (c *Client) handleScript(cmd *protocol.Command) {
	if !c.checkArity(cmd, len(cmd.Args) > 0) {
		return
	}

	subCmd := strings.ToUpper(string(cmd.Args[0]))

	switch subCmd {
	case "LOAD":
		if len(cmd.Args) != 2 {
			c.writeError("ERR wrong number of arguments for 'script|load' command")
			return
		}
		sha := c.server.lua.LoadScript(string(cmd.Args[1]))
		c.writer.WriteBulkString([]byte(sha))

	case "EXISTS":
		if len(cmd.Args) < 2 {
			c.writeError("ERR wrong number of arguments for 'script|exists' command")
			return
		}
		results := c.server.lua.ScriptExists(argStrings(cmd.Args[1:]))

		values := make([]protocol.Value, len(results))
		for i, exists := range results {
			if exists {
				values[i] = protocol.Integer(1)
			} else {
				values[i] = protocol.Integer(0)
			}
		}
		c.writer.WriteArray(values)

	case "FLUSH":
		c.server.lua.ScriptFlush()
		c.writer.WriteOK()

	default:
		c.writeError(fmt.Sprintf("ERR unknown subcommand '%s'", string(cmd.Args[0])))
	}
}

// Response writers. Replies are buffered; handle flushes them.

func (c *Client) writeError(msg string) {
	c.server.errorCount.Add(1)
	if c.server.metrics != nil {
		code, _, _ := strings.Cut(msg, " ")
		c.server.metrics.RecordError(code)
	}
	c.writer.WriteError(msg)
}

func (c *Client) writeStorageError(err error) {
	if errors.Is(err, storage.ErrClosed) {
		c.server.logger.Error("Command on closed storage", "error", err)
	}
	c.writeError(protocol.ErrorReply(err))
}

func (c *Client) writeIntegerResult(n int64, err error) {
	if err != nil {
		c.writeStorageError(err)
		return
	}
	c.writer.WriteInteger(n)
}

// parseInt parses an integer argument, replying with an error on failure
func (c *Client) parseInt(arg []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(arg), 10, 64)
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return 0, false
	}
	return n, true
}

func (c *Client) writeResult(result interface{}) {
	c.writer.WriteValue(toValue(result))
}

// toValue converts a script result into a RESP value
func toValue(item interface{}) protocol.Value {
	switch v := item.(type) {
	case nil:
		return protocol.NullBulkString()
	case string:
		return protocol.BulkString([]byte(v))
	case []byte:
		return protocol.BulkString(v)
	case int64:
		return protocol.Integer(v)
	case int:
		return protocol.Integer(int64(v))
	case float64:
		// Lua numbers are truncated to integers, as in Redis
		return protocol.Integer(int64(v))
	case bool:
		if v {
			return protocol.Integer(1)
		}
		return protocol.NullBulkString()
	case lua.StatusReply:
		return protocol.Value{Type: protocol.TypeSimpleString, Data: []byte(v)}
	case lua.ErrorReply:
		return protocol.Value{Type: protocol.TypeError, Data: []byte(protocol.ErrorReply(errors.New(string(v))))}
	case []interface{}:
		values := make([]protocol.Value, len(v))
		for i, elem := range v {
			values[i] = toValue(elem)
		}
		return protocol.Value{Type: protocol.TypeArray, Array: values}
	default:
		return protocol.BulkString([]byte(fmt.Sprintf("%v", v)))
	}
}

func argStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = string(arg)
	}
	return out
}

// nopLogger discards everything
type nopLogger struct{}

func (l *nopLogger) Debug(msg string, fields ...interface{}) {}
func (l *nopLogger) Info(msg string, fields ...interface{})  {}
func (l *nopLogger) Error(msg string, fields ...interface{}) {}
