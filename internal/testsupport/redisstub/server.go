// Package redisstub runs a minimal in-process Redis protocol server covering
// the commands the login throttle issues: INCR, EXPIRE, TTL, and PING.
package redisstub

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Password string
}

type Server struct {
	opts     Options
	listener net.Listener
	addr     string
	mu       sync.Mutex
	kv       map[string]*entry
	closed   chan struct{}
}

type entry struct {
	value  int64
	expiry time.Time
}

func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &Server{
		opts:     opts,
		listener: ln,
		addr:     ln.Addr().String(),
		kv:       make(map[string]*entry),
		closed:   make(chan struct{}),
	}
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	s.mu.Unlock()
	return s.listener.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				continue
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authed := s.opts.Password == ""
	for {
		args, err := readCommand(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		cmd := strings.ToUpper(args[0])
		switch cmd {
		case "HELLO":
			writeError(writer, "ERR unknown command 'HELLO'")
		case "AUTH":
			if len(args) < 2 || args[len(args)-1] != s.opts.Password {
				writeError(writer, "ERR invalid password")
			} else {
				authed = true
				writeSimple(writer, "OK")
			}
		case "CLIENT", "SELECT":
			writeSimple(writer, "OK")
		case "PING":
			if !authed {
				writeError(writer, "NOAUTH Authentication required.")
			} else {
				writeSimple(writer, "PONG")
			}
		case "INCR":
			if !authed {
				writeError(writer, "NOAUTH Authentication required.")
			} else if len(args) != 2 {
				writeError(writer, "ERR wrong number of arguments for 'incr' command")
			} else {
				writeInt(writer, s.incr(args[1]))
			}
		case "EXPIRE":
			if !authed {
				writeError(writer, "NOAUTH Authentication required.")
			} else if len(args) != 3 {
				writeError(writer, "ERR wrong number of arguments for 'expire' command")
			} else {
				seconds, err := strconv.ParseInt(args[2], 10, 64)
				if err != nil {
					writeError(writer, "ERR value is not an integer or out of range")
				} else {
					writeInt(writer, s.expire(args[1], seconds))
				}
			}
		case "TTL":
			if !authed {
				writeError(writer, "NOAUTH Authentication required.")
			} else if len(args) != 2 {
				writeError(writer, "ERR wrong number of arguments for 'ttl' command")
			} else {
				writeInt(writer, s.ttl(args[1]))
			}
		default:
			writeError(writer, fmt.Sprintf("ERR unknown command '%s'", args[0]))
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) incr(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.kv[key]
	if e == nil || (!e.expiry.IsZero() && time.Now().After(e.expiry)) {
		e = &entry{}
		s.kv[key] = e
	}
	e.value++
	return e.value
}

func (s *Server) expire(key string, seconds int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.kv[key]
	if e == nil {
		return 0
	}
	e.expiry = time.Now().Add(time.Duration(seconds) * time.Second)
	return 1
}

func (s *Server) ttl(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.kv[key]
	if e == nil {
		return -2
	}
	if e.expiry.IsZero() {
		return -1
	}
	remaining := time.Until(e.expiry)
	if remaining <= 0 {
		delete(s.kv, key)
		return -2
	}
	seconds := int64(remaining / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func readCommand(reader *bufio.Reader) ([]string, error) {
	line, err := readLine(reader)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		// Inline command form.
		return strings.Fields(line), nil
	}
	count, err := strconv.Atoi(line[1:])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("malformed array header %q", line)
	}
	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		header, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(header, "$") {
			return nil, fmt.Errorf("unexpected bulk header %q", header)
		}
		length, err := strconv.Atoi(header[1:])
		if err != nil || length < 0 {
			return nil, fmt.Errorf("malformed bulk length %q", header)
		}
		buf := make([]byte, length+2)
		if _, err := ioReadFull(reader, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:length]))
	}
	return args, nil
}

func ioReadFull(reader *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := reader.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeSimple(writer *bufio.Writer, value string) {
	fmt.Fprintf(writer, "+%s\r\n", value)
}

func writeError(writer *bufio.Writer, message string) {
	fmt.Fprintf(writer, "-%s\r\n", message)
}

func writeInt(writer *bufio.Writer, value int64) {
	fmt.Fprintf(writer, ":%d\r\n", value)
}
