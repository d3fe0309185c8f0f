package instrument

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// scpiServer is a scripted instrument stand-in: it records every received
// command line and answers queries from a reply map, defaulting to "1" so
// *OPC? synchronization always completes. Commands without a "?" get no
// reply, matching write-only SCPI semantics.
type scpiServer struct {
	ln net.Listener

	mu       sync.Mutex
	commands []string
	replies  map[string]string
}

func startSCPIServer(t *testing.T, replies map[string]string) *scpiServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &scpiServer{ln: ln, replies: replies}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			reply, scripted := s.replies[cmd]
			s.mu.Unlock()

			if !strings.Contains(cmd, "?") {
				continue
			}
			if !scripted {
				reply = "1"
			}
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}()

	return s
}

func (s *scpiServer) Addr() string { return s.ln.Addr().String() }

func (s *scpiServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// commandIndex returns the position of the first command equal to want at or
// after from, or -1.
func commandIndex(commands []string, want string, from int) int {
	for i := from; i < len(commands); i++ {
		if commands[i] == want {
			return i
		}
	}
	return -1
}
