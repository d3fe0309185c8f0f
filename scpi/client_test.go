package scpi

import (
	"bufio"
	"context"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startScriptedServer runs a single-connection line server whose replies come
// from the respond callback. Returning ok=false suppresses the reply (for
// write-only commands).
func startScriptedServer(t *testing.T, respond func(cmd string) (string, bool)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
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
			if reply, ok := respond(strings.TrimSpace(line)); ok {
				if _, err := conn.Write([]byte(reply + "\n")); err != nil {
					return
				}
			}
		}
	}()

	return ln.Addr().String()
}

func dialTest(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestQueryTrimsReply(t *testing.T) {
	addr := startScriptedServer(t, func(cmd string) (string, bool) {
		if cmd == "*IDN?" {
			return "  Rohde&Schwarz,FSW,123456,1.0  ", true
		}
		return "", false
	})

	c := dialTest(t, addr)
	reply, err := c.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "Rohde&Schwarz,FSW,123456,1.0", reply)
}

func TestQuerySyncAppendsOPC(t *testing.T) {
	var got string
	addr := startScriptedServer(t, func(cmd string) (string, bool) {
		got = cmd
		return "1", true
	})

	c := dialTest(t, addr)
	require.NoError(t, c.QuerySync("*RST"))
	assert.Equal(t, "*RST; *OPC?", got)
}

func TestQueryFloat(t *testing.T) {
	cases := []struct {
		name    string
		reply   string
		want    float64
		wantNaN bool
	}{
		{name: "plain", reply: "-13.42", want: -13.42},
		{name: "scientific", reply: "1.25E+01", want: 12.5},
		{name: "padded", reply: "  3.000 ", want: 3.0},
		{name: "non numeric", reply: "ERR", wantNaN: true},
		{name: "empty", reply: "", wantNaN: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr := startScriptedServer(t, func(string) (string, bool) {
				return tc.reply, true
			})

			c := dialTest(t, addr)
			v, err := c.QueryFloat("FETC:DUMMY?")
			require.NoError(t, err)
			if tc.wantNaN {
				assert.True(t, math.IsNaN(v))
			} else {
				assert.InDelta(t, tc.want, v, 1e-9)
			}
		})
	}
}

func TestQueryAfterPeerClose(t *testing.T) {
	addr := startScriptedServer(t, func(cmd string) (string, bool) {
		return "1", true
	})

	c := dialTest(t, addr)
	require.NoError(t, c.QuerySync("*RST"))
	require.NoError(t, c.Close())

	_, err := c.Query("*IDN?")
	assert.Error(t, err)
}

func TestDialRefused(t *testing.T) {
	// Grab a port and close it immediately so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = Dial(ctx, addr)
	assert.Error(t, err)
}
