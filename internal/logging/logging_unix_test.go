//go:build unix

package logging

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/joeycumines/go-fest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AutoIsTextOnATerminal(t *testing.T) {
	ptm, pts, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptm.Close()
	defer pts.Close()

	require.True(t, IsTerminal(pts))

	logger, closer, err := New(config.DefaultSettings(), pts)
	require.NoError(t, err)
	defer closer.Close()
	logger.Info("on a tty", "owner", "pty")

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(ptm).ReadString('\n')
		lines <- line
	}()
	select {
	case line := <-lines:
		line = strings.TrimRight(line, "\r\n")
		assert.Contains(t, line, "level=INFO")
		assert.Contains(t, line, `msg="on a tty"`)
		assert.Contains(t, line, "owner=pty")
	case <-time.After(5 * time.Second):
		t.Fatal("no output read from the pty")
	}
}
