package main

import (
	"bytes"
	"strings"
	"testing"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelpListsSubcommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	if err != nil {
		t.Fatalf("execute --help: %v\nOutput:\n%s", err, output)
	}
	for _, name := range []string{"serve", "chat", "status", "version"} {
		if !strings.Contains(output, name) {
			t.Errorf("help output missing %q subcommand:\n%s", name, output)
		}
	}
}

func TestRootWithoutSubcommandFails(t *testing.T) {
	_, err := runRootCommandForTest()
	if err == nil {
		t.Fatal("expected error when no subcommand is given")
	}
}

func TestChatRequiresServerCommandOrURL(t *testing.T) {
	_, err := runRootCommandForTest("chat")
	if err == nil {
		t.Fatal("expected error when chat has no server command and no --url")
	}
	if !strings.Contains(err.Error(), "server command") && !strings.Contains(err.Error(), "--url") &&
		!strings.Contains(err.Error(), "required") {
		t.Errorf("unexpected error: %v", err)
	}
}
