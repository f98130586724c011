package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/girowatch/girowatch/internal/config"
	"github.com/girowatch/girowatch/internal/pairing"
	"github.com/girowatch/girowatch/internal/store"
	"github.com/girowatch/girowatch/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

type copyTransformer struct {
	mu    sync.Mutex
	calls [][2]string
}

func (c *copyTransformer) Transform(_ context.Context, pdfPath, xmlPath, outputPath string) error {
	c.mu.Lock()
	c.calls = append(c.calls, [2]string{pdfPath, xmlPath})
	c.mu.Unlock()
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func (c *copyTransformer) Calls() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]string(nil), c.calls...)
}

type testEnv struct {
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	root := t.TempDir()
	env := &testEnv{
		cfg: &config.Config{
			Watch: config.WatchConfig{
				XML:           config.SourceConfig{Directory: filepath.Join(root, "xml"), Pattern: `.*\.xml$`},
				PDF:           config.SourceConfig{Directory: filepath.Join(root, "pdf"), Pattern: `.*\.pdf$`},
				PatternSyntax: config.PatternRegex,
				Debounce:      50 * time.Millisecond,
			},
			Output: config.OutputConfig{
				Directory:    filepath.Join(root, "out"),
				ErrorLogPath: filepath.Join(root, "logs", "error.log"),
			},
		},
	}
	for _, dir := range []string{env.cfg.Watch.XML.Directory, env.cfg.Watch.PDF.Directory} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return env
}

func (e *testEnv) writeXML(t *testing.T, name string) string {
	path := filepath.Join(e.cfg.Watch.XML.Directory, name)
	require.NoError(t, os.WriteFile(path, []byte("<CrossIndustryInvoice/>"), 0o644))
	return path
}

// movePDF writes name under a temporary name in the PDF directory and renames it
func (e *testEnv) movePDF(t *testing.T, name string) string {
	src := filepath.Join(e.cfg.Watch.PDF.Directory, name+".part")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.7 "+name), 0o644))
	dst := filepath.Join(e.cfg.Watch.PDF.Directory, name)
	require.NoError(t, os.Rename(src, dst))
	return dst
}

func startAgent(t *testing.T, opts Options) (cancel context.CancelFunc, result <-chan error) {
	a, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(cancel)

	// fsnotify registration happens inside Run
	time.Sleep(100 * time.Millisecond)
	return cancel, done
}

func waitResult(t *testing.T, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
		return nil
	}
}

func TestAgentDispatchesPairEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	tr := &copyTransformer{}
	journal, err := store.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	cancel, result := startAgent(t, Options{Config: env.cfg, Transformer: tr, Journal: journal, Logger: zerolog.New(zerolog.NewTestWriter(t))})

	xml := env.writeXML(t, "invoice.xml")
	time.Sleep(150 * time.Millisecond)
	pdf := env.movePDF(t, "invoice.pdf")

	output := filepath.Join(env.cfg.Output.Directory, "invoice.pdf")
	require.Eventually(t, func() bool {
		_, err := os.Stat(output)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, waitResult(t, result))

	assert.Equal(t, [][2]string{{pdf, xml}}, tr.Calls())

	stats, err := journal.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 1, stats.ByStatus[string(models.DispatchSucceeded)])
}

func TestAgentReplaysPairTwice(t *testing.T) {
	env := newTestEnv(t)
	tr := &copyTransformer{}
	cancel, result := startAgent(t, Options{Config: env.cfg, Transformer: tr, Logger: zerolog.New(zerolog.NewTestWriter(t))})

	for i := 0; i < 2; i++ {
		env.writeXML(t, "invoice.xml")
		time.Sleep(150 * time.Millisecond)
		env.movePDF(t, "invoice.pdf")
		want := i + 1
		require.Eventually(t, func() bool { return len(tr.Calls()) == want }, 3*time.Second, 20*time.Millisecond)
	}

	cancel()
	require.NoError(t, waitResult(t, result))
	assert.Len(t, tr.Calls(), 2)
}

func TestAgentStopsOnProtocolViolation(t *testing.T) {
	env := newTestEnv(t)
	tr := &copyTransformer{}
	_, result := startAgent(t, Options{Config: env.cfg, Transformer: tr, Logger: zerolog.New(zerolog.NewTestWriter(t))})

	env.writeXML(t, "first.xml")
	time.Sleep(150 * time.Millisecond)
	env.writeXML(t, "second.xml")

	err := waitResult(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pairing.ErrSlotOccupied))
	assert.Empty(t, tr.Calls())
}

func TestAgentGracefulShutdownAbandonsHalfPair(t *testing.T) {
	env := newTestEnv(t)
	cancel, result := startAgent(t, Options{Config: env.cfg, Transformer: &copyTransformer{}, Logger: zerolog.New(zerolog.NewTestWriter(t))})

	env.movePDF(t, "lonely.pdf")
	time.Sleep(100 * time.Millisecond)

	cancel()
	assert.NoError(t, waitResult(t, result))
	assert.DirExists(t, env.cfg.Output.Directory)
	assert.DirExists(t, filepath.Dir(env.cfg.Output.ErrorLogPath))
}

func TestAgentFailsWhenWatchDirectoryMissing(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Watch.PDF.Directory = filepath.Join(t.TempDir(), "does-not-exist")

	a, err := New(Options{Config: env.cfg, Transformer: &copyTransformer{}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestNewRejectsBadPattern(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Watch.XML.Pattern = "("

	_, err := New(Options{Config: env.cfg, Transformer: &copyTransformer{}, Logger: zerolog.Nop()})
	assert.True(t, errors.Is(err, config.ErrInvalidSetting))
}

func TestStaleCheckInterval(t *testing.T) {
	assert.Equal(t, time.Minute, staleCheckInterval(4*time.Minute))
	assert.Equal(t, time.Duration(3), staleCheckInterval(3))
}
