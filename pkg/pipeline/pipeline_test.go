package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw33tLie/ruleconv/pkg/compiler"
	"github.com/sw33tLie/ruleconv/pkg/storage"
)

type fakeFetcher struct {
	content map[string]string
	delay   map[string]time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceID string) ([]byte, error) {
	if d, ok := f.delay[sourceID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c, ok := f.content[sourceID]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(c), nil
}

type fakeCompiler struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (c *fakeCompiler) Compile(ctx context.Context, jsonPath, outPath string) error {
	c.mu.Lock()
	c.calls = append(c.calls, filepath.Base(outPath))
	c.mu.Unlock()
	if c.fail != "" && strings.HasSuffix(jsonPath, c.fail) {
		return errors.New("exit status 1")
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

const (
	srcA = "https://example.com/rules/A.yaml"
	srcB = "https://example.com/rules/B.list"
	srcC = "https://example.com/rules/C.list"
)

func readOutput(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestRunIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{content: map[string]string{
		srcA: "payload:\n  - '+a.com'\n  - '192.168.1.0/24'\n  - 'DOMAIN-KEYWORD,ads'\n",
		srcC: "DOMAIN,c.com\nDOMAIN-SUFFIX,c.org\n",
	}}
	comp := &fakeCompiler{}

	var mu sync.Mutex
	var done []string
	res, err := Run(context.Background(), Config{
		Fetcher:   f,
		Compiler:  comp,
		OutputDir: dir,
		OnSourceDone: func(r SourceResult) {
			mu.Lock()
			done = append(done, r.Name)
			mu.Unlock()
		},
	}, []string{srcA, srcB, srcC})
	require.NoError(t, err)

	assert.Equal(t, []string{"A.json", "C.json"}, res.Processed())
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, srcB, failed[0].Source)
	assert.Equal(t, StageFetch, StageOf(failed[0].Err))
	assert.Contains(t, failed[0].Err.Error(), "connection refused")

	sort.Strings(done)
	assert.Equal(t, []string{"A", "B", "C"}, done)

	want := `{
  "rules": [
    {
      "domain_keyword": [
        "ads"
      ]
    },
    {
      "domain_suffix": [
        "a.com"
      ]
    },
    {
      "ip_cidr": [
        "192.168.1.0/24"
      ]
    }
  ],
  "version": 1
}`
	assert.Equal(t, want, readOutput(t, dir, "A.json"))
	assert.Equal(t, want, readOutput(t, dir, "A.srs"))
	assert.Contains(t, readOutput(t, dir, "C.json"), `"c.com"`)
	assert.NotContains(t, readOutput(t, dir, "C.json"), "a.com")

	_, err = os.Stat(filepath.Join(dir, "B.json"))
	assert.True(t, os.IsNotExist(err))

	sort.Strings(comp.calls)
	assert.Equal(t, []string{"A.srs", "C.srs"}, comp.calls)
}

func TestRunCompileFailure(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{content: map[string]string{
		srcA: "payload:\n  - a.com\n",
		srcC: "DOMAIN,c.com\n",
	}}
	res, err := Run(context.Background(), Config{
		Fetcher:   f,
		Compiler:  &fakeCompiler{fail: "C.json"},
		OutputDir: dir,
	}, []string{srcA, srcC})
	require.NoError(t, err)

	require.True(t, res.Sources[0].OK())
	assert.Equal(t, filepath.Join(dir, "A.srs"), res.Sources[0].BinaryPath)

	assert.Equal(t, StageCompile, StageOf(res.Sources[1].Err))
	assert.Empty(t, res.Sources[1].JSONPath)
	assert.Equal(t, []string{"A.json"}, res.Processed())

	_, err = os.Stat(filepath.Join(dir, "C.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCompileFailureRemovesStaleBinary(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "C.srs")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	f := &fakeFetcher{content: map[string]string{srcC: "DOMAIN,c.com\n"}}
	res, err := Run(context.Background(), Config{
		Fetcher:   f,
		Compiler:  &fakeCompiler{fail: "C.json"},
		OutputDir: dir,
	}, []string{srcC})
	require.NoError(t, err)
	assert.Equal(t, StageCompile, StageOf(res.Sources[0].Err))

	for _, name := range []string{"C.json", "C.srs"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}
}

func TestRunMissingCompilerBinary(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{content: map[string]string{
		srcA: "payload:\n  - a.com\n",
		srcC: "DOMAIN,c.com\n",
	}}
	res, err := Run(context.Background(), Config{
		Fetcher:   f,
		Compiler:  compiler.NewSingBox(filepath.Join(t.TempDir(), "no-sing-box")),
		OutputDir: dir,
	}, []string{srcA, srcC})
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	for _, r := range res.Sources {
		assert.Equal(t, StageCompile, StageOf(r.Err), r.Source)
	}
	assert.Empty(t, res.Processed())
}

func TestRunParseFailure(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{content: map[string]string{
		srcB: "DOMAIN,a.com,x,y,z,w\n",
	}}
	res, err := Run(context.Background(), Config{Fetcher: f, OutputDir: dir}, []string{srcB})
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, StageParse, StageOf(res.Sources[0].Err))
}

func TestRunWithoutCompiler(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	f := &fakeFetcher{content: map[string]string{srcC: "DOMAIN,c.com\n"}}

	res, err := Run(context.Background(), Config{Fetcher: f, OutputDir: dir}, []string{srcC})
	require.NoError(t, err)
	require.True(t, res.Sources[0].OK())
	assert.Empty(t, res.Sources[0].BinaryPath)
	assert.Equal(t, map[string]int{"domain": 1}, res.Sources[0].Counts)

	_, err = os.Stat(filepath.Join(dir, "C.srs"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunPerSourceTimeout(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{
		content: map[string]string{srcA: "payload:\n  - a.com\n", srcC: "DOMAIN,c.com\n"},
		delay:   map[string]time.Duration{srcA: time.Minute},
	}
	res, err := Run(context.Background(), Config{
		Fetcher:   f,
		OutputDir: dir,
		Timeout:   50 * time.Millisecond,
	}, []string{srcA, srcC})
	require.NoError(t, err)

	assert.ErrorIs(t, res.Sources[0].Err, context.DeadlineExceeded)
	assert.True(t, res.Sources[1].OK())
}

func TestRunCollisionLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	first := "https://one.example/AdBlock.list"
	second := "https://two.example/AdBlock.yaml"
	f := &fakeFetcher{content: map[string]string{
		first:  "DOMAIN,first.com\n",
		second: "payload:\n  - second.com\n",
	}}

	res, err := Run(context.Background(), Config{Fetcher: f, OutputDir: dir, Concurrency: 4}, []string{first, second})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"AdBlock": {first, second}}, res.Collisions)
	assert.Contains(t, readOutput(t, dir, "AdBlock.json"), "second.com")
}

func TestRunOrderIndependent(t *testing.T) {
	lines := []string{
		"DOMAIN,b.com",
		"DOMAIN-SUFFIX,x.org",
		"HOST,a.com",
		"IP-CIDR,10.0.0.0/8,no-resolve",
		"DOMAIN-SUFFIX,a.org",
		"AND,((DOMAIN,foo.com),(DST-PORT,443))",
		"AND,((GEOIP,CN),(SRC-PORT,53))",
		"DOMAIN-KEYWORD,ads",
	}
	reversed := make([]string, len(lines))
	for i, l := range lines {
		reversed[len(lines)-1-i] = l
	}

	dirA, dirB := t.TempDir(), t.TempDir()
	for dir, content := range map[string][]string{dirA: lines, dirB: reversed} {
		f := &fakeFetcher{content: map[string]string{srcB: strings.Join(content, "\n")}}
		res, err := Run(context.Background(), Config{Fetcher: f, OutputDir: dir}, []string{srcB})
		require.NoError(t, err)
		require.True(t, res.Sources[0].OK(), "%v", res.Sources[0].Err)
	}

	assert.Equal(t, readOutput(t, dirA, "B.json"), readOutput(t, dirB, "B.json"))
}

func TestRunRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	f := &fakeFetcher{content: map[string]string{srcC: "DOMAIN,c.com\n"}}
	cfg := Config{Fetcher: f, OutputDir: dir, DB: db}

	res, err := Run(context.Background(), cfg, []string{srcC})
	require.NoError(t, err)
	require.Len(t, res.Sources[0].Changes, 1)

	f.content[srcC] = "DOMAIN,c.com\nDOMAIN,d.com\n"
	res, err = Run(context.Background(), cfg, []string{srcC})
	require.NoError(t, err)
	require.Len(t, res.Sources[0].Changes, 1)
	assert.Equal(t, "added", res.Sources[0].Changes[0].ChangeType)
	assert.Equal(t, "d.com", res.Sources[0].Changes[0].Value)
}

func TestRunRequiresFetcher(t *testing.T) {
	_, err := Run(context.Background(), Config{}, []string{srcA})
	assert.Error(t, err)
}

func TestRunUnnamedSource(t *testing.T) {
	res, err := Run(context.Background(), Config{Fetcher: &fakeFetcher{}, OutputDir: t.TempDir()}, []string{"https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, StageWrite, StageOf(res.Sources[0].Err))
}
