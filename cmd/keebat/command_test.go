package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a command tree with the given args and returns
// everything cobra wrote to its out/err streams.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// captureStdout collects what fn writes to os.Stdout. The table and JSON
// printers write there directly, bypassing cobra's out stream. The color
// package holds its own output handle, so that is swapped too.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	origStdout, origColor := os.Stdout, color.Output
	os.Stdout, color.Output = w, w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout, color.Output = origStdout, origColor
	return <-done
}
