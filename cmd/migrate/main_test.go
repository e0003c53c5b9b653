package main

import (
	"io"
	"testing"

	"github.com/angelmondragon/splitpay-backend/pkg/migrate"
)

func TestParseArgsDefaultsToUp(t *testing.T) {
	opts, err := parseArgs(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}
	if opts.cmd != "up" || opts.dir != migrate.DefaultDir {
		t.Fatalf("unexpected defaults %+v", opts)
	}
}

func TestParseArgsPositionalCommand(t *testing.T) {
	opts, err := parseArgs([]string{"create", "-name=add_tip_split"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}
	if opts.cmd != "create" || opts.name != "add_tip_split" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if !offline[opts.cmd] {
		t.Fatalf("create should not need a database")
	}
}

func TestParseArgsRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"-cmd=drop"},
		{"create"},
		{"version"},
		{"-cmd=version", "-version=2026"},
	}
	for _, args := range cases {
		if _, err := parseArgs(args, io.Discard); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestParseArgsVersion(t *testing.T) {
	opts, err := parseArgs([]string{"-cmd=version", "-version=20260301120500"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}
	if !online[opts.cmd] || opts.version != "20260301120500" {
		t.Fatalf("unexpected options %+v", opts)
	}
}
