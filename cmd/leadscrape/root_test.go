package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/engine"
	"github.com/use-agent/leadscrape/models"
)

func TestResolveKeyword(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		flag   string
		stdin  string
		want   string
		prompt bool
	}{
		{name: "flag wins", args: []string{"plumber"}, flag: "pizza", want: "pizza"},
		{name: "argument", args: []string{"plumber"}, want: "plumber"},
		{name: "prompt", stdin: "  dentist \n", want: "dentist", prompt: true},
		{name: "prompt without newline", stdin: "bakery", want: "bakery", prompt: true},
		{name: "blank prompt", stdin: "\n", want: "", prompt: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			if tt.flag != "" {
				require.NoError(t, cmd.Flags().Set("keyword", tt.flag))
			}
			var out bytes.Buffer

			got, err := resolveKeyword(context.Background(), cmd, tt.args, strings.NewReader(tt.stdin), &out)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.prompt {
				assert.Equal(t, keywordPrompt, out.String())
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestResolveKeyword_PromptInterrupted(t *testing.T) {
	stdin, typing := io.Pipe()
	defer typing.Close()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	var out bytes.Buffer

	start := time.Now()
	_, err := resolveKeyword(ctx, newRootCmd(), nil, stdin, &out)

	assert.True(t, models.IsCode(err, models.ErrCodeInterrupted))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, strings.HasPrefix(out.String(), keywordPrompt))
}

func TestRootCmd_InterruptAtPromptWritesNothing(t *testing.T) {
	t.Setenv("LEADSCRAPE_OUTPUT", filepath.Join(t.TempDir(), "businesses.csv"))
	stdin, typing := io.Pipe()
	defer typing.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(stdin)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Contains(t, out.String(), "nothing was written")
	assert.NoFileExists(t, os.Getenv("LEADSCRAPE_OUTPUT"))
}

func TestRun_CancelledLeavesPreviousOutput(t *testing.T) {
	cfg := config.Load()
	cfg.Browser.Engine = engine.Rod
	cfg.Output.Path = filepath.Join(t.TempDir(), "businesses.csv")
	previous := "Business Name,Phone Number,URL\nTony's Pizza,+1 (555) 123-4567,https://tony.test/\n"
	require.NoError(t, os.WriteFile(cfg.Output.Path, []byte(previous), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, cfg, "pizza", &bytes.Buffer{})

	assert.True(t, models.IsCode(err, models.ErrCodeInterrupted), "no browser is launched: %v", err)
	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t, previous, string(data))
}

func TestRun_DiagnosticPathFollowsEngine(t *testing.T) {
	tests := []struct {
		engine string
		want   string
	}{
		{engine.HTTP, "search_error.html"},
		{engine.Rod, "search_error.png"},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			cfg := config.Load()
			cfg.Browser.Engine = tt.engine
			cfg.Output.Path = filepath.Join(t.TempDir(), "businesses.csv")
			cfg.Output.DiagnosticPath = ""
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_ = run(ctx, cfg, "pizza", &bytes.Buffer{})

			assert.Equal(t, tt.want, cfg.Output.DiagnosticPath)
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Set("output", "leads.db"))
	require.NoError(t, cmd.Flags().Set("format", "sqlite"))
	require.NoError(t, cmd.Flags().Set("headless", "true"))
	cfg := config.Load()
	cfg.Browser.Engine = engine.Rod

	require.NoError(t, applyFlags(cmd, cfg))

	assert.Equal(t, "leads.db", cfg.Output.Path)
	assert.Equal(t, "sqlite", cfg.Output.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, engine.Rod, cfg.Browser.Engine, "unset flags keep the configured value")
}

func TestRun_BlankKeyword(t *testing.T) {
	cfg := config.Load()
	cfg.Output.Path = filepath.Join(t.TempDir(), "businesses.csv")

	err := run(context.Background(), cfg, "   ", &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_INPUT")
	assert.NoFileExists(t, cfg.Output.Path)
}

func TestRun_EndToEndOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body><form action="/search"><textarea name="q"></textarea><input type="submit" value="Search"></form></body></html>`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pizza near me", r.URL.Query().Get("q"))
		w.Write([]byte(`<html><body>
			<div class="tF2Cxc"><a href="/biz/tony"><h3>Tony's Pizza</h3></a></div>
			<div class="tF2Cxc"><a href="/biz/luigi"><h3>Luigi's</h3></a></div>
		</body></html>`))
	})
	mux.HandleFunc("/biz/tony", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Call +1 (555) 123-4567</p></body></html>`))
	})
	mux.HandleFunc("/biz/luigi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Walk-ins welcome</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.Load()
	cfg.Browser.Engine = engine.HTTP
	cfg.HTTP.RequestsPerSecond = 0
	cfg.Search.EntryURL = srv.URL + "/"
	cfg.Timing = config.TimingConfig{
		ResultsTimeout:   time.Second,
		EntriesTimeout:   time.Second,
		ChallengeTimeout: 20 * time.Millisecond,
		ChallengePoll:    10 * time.Millisecond,
		NextPageTimeout:  20 * time.Millisecond,
	}
	dir := t.TempDir()
	cfg.Output.Path = filepath.Join(dir, "businesses.csv")
	cfg.Output.Format = "csv"
	cfg.Output.DiagnosticPath = filepath.Join(dir, "search_error.html")
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), cfg, "pizza", &out))

	f, err := os.Open(cfg.Output.Path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Business Name", "Phone Number", "URL"},
		{"Tony's Pizza", "+1 (555) 123-4567", srv.URL + "/biz/tony"},
	}, rows)
	assert.Contains(t, out.String(), "Scraping complete. 1 businesses saved to "+cfg.Output.Path)
}
