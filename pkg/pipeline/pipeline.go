// Package pipeline runs the fetch, parse, normalize, aggregate, write and
// compile steps for a batch of sources. Each source is its own failure
// domain: an error in one source is recorded on its result and never stops
// the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sw33tLie/ruleconv/pkg/canonical"
	"github.com/sw33tLie/ruleconv/pkg/compiler"
	"github.com/sw33tLie/ruleconv/pkg/fetcher"
	"github.com/sw33tLie/ruleconv/pkg/parser"
	"github.com/sw33tLie/ruleconv/pkg/rules"
	"github.com/sw33tLie/ruleconv/pkg/sources"
	"github.com/sw33tLie/ruleconv/pkg/storage"
)

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 2 * time.Minute

	JSONExt   = ".json"
	BinaryExt = ".srs"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Config holds everything Run needs.
type Config struct {
	Fetcher     fetcher.Fetcher   // required
	Compiler    compiler.Compiler // optional; nil = JSON output only
	Vocabulary  rules.Vocabulary  // zero value = rules.DefaultVocabulary()
	OutputDir   string            // defaults to "."
	Concurrency int               // defaults to 5 if <= 0
	Timeout     time.Duration     // per source; defaults to 2m if <= 0
	DB          *storage.DB       // optional rule history
	Log         Logger            // optional; nil = no logging

	// OnSourceDone is called once per source as soon as it finishes, from
	// worker goroutines. Nil = no callback.
	OnSourceDone func(SourceResult)
}

// SourceResult is the outcome of one source.
type SourceResult struct {
	Source     string
	Name       string
	Grammar    parser.Grammar
	JSONPath   string
	BinaryPath string // empty when compilation is disabled or failed
	Counts     map[string]int
	Dropped    int
	Warnings   []rules.Warning
	Changes    []storage.Change
	Err        error // nil on success; a *StageError otherwise
	Duration   time.Duration
}

// OK reports whether the source produced its output.
func (r SourceResult) OK() bool { return r.Err == nil }

// RunResult holds the per-source results in input order.
type RunResult struct {
	Sources []SourceResult
	// Collisions maps an output name to the sources that share it.
	Collisions map[string][]string
}

// Processed returns the JSON file names written, in input order. Failed
// sources are absent.
func (r *RunResult) Processed() []string {
	var out []string
	for _, s := range r.Sources {
		if s.OK() {
			out = append(out, filepath.Base(s.JSONPath))
		}
	}
	return out
}

// Failed returns the results of failed sources.
func (r *RunResult) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Run processes every source identifier. The returned error is only for
// problems that prevent the whole batch from starting; per-source failures
// are reported in RunResult.
func Run(ctx context.Context, cfg Config, sourceIDs []string) (*RunResult, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("pipeline: no fetcher configured")
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = "."
	}
	vocab := cfg.Vocabulary
	if vocab.Len() == 0 {
		vocab = rules.DefaultVocabulary()
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	w := &worker{
		fetcher:  cfg.Fetcher,
		parser:   parser.New(vocab),
		vocab:    vocab,
		compiler: cfg.Compiler,
		outDir:   outDir,
		timeout:  timeout,
		db:       cfg.DB,
		log:      log,
	}

	result := &RunResult{Sources: make([]SourceResult, len(sourceIDs))}
	jobs, collisions := planJobs(sourceIDs)
	if len(collisions) > 0 {
		result.Collisions = collisions
		for name, ids := range collisions {
			log.Warnf("%d sources share the output name %q, the last one listed wins: %v", len(ids), name, ids)
		}
	}

	if concurrency > len(jobs) {
		concurrency = len(jobs)
	}

	jobChan := make(chan job, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				// Sources sharing a name run one after another so the
				// last one listed deterministically owns the file.
				for _, idx := range j.indexes {
					res := w.process(ctx, sourceIDs[idx], j.name)
					result.Sources[idx] = res
					if cfg.OnSourceDone != nil {
						cfg.OnSourceDone(res)
					}
				}
			}
		}()
	}

	for _, j := range jobs {
		jobChan <- j
	}
	close(jobChan)
	wg.Wait()

	return result, nil
}

// job is a group of source indexes writing to the same output name.
type job struct {
	name    string
	indexes []int
}

func planJobs(sourceIDs []string) ([]job, map[string][]string) {
	byName := make(map[string]int)
	var jobs []job
	collisions := make(map[string][]string)
	for i, id := range sourceIDs {
		name := sources.BaseName(id)
		if name == "" {
			jobs = append(jobs, job{name: name, indexes: []int{i}})
			continue
		}
		if pos, ok := byName[name]; ok {
			jobs[pos].indexes = append(jobs[pos].indexes, i)
			continue
		}
		byName[name] = len(jobs)
		jobs = append(jobs, job{name: name, indexes: []int{i}})
	}
	for _, j := range jobs {
		if j.name != "" && len(j.indexes) > 1 {
			for _, idx := range j.indexes {
				collisions[j.name] = append(collisions[j.name], sourceIDs[idx])
			}
		}
	}
	return jobs, collisions
}

type worker struct {
	fetcher  fetcher.Fetcher
	parser   *parser.Parser
	vocab    rules.Vocabulary
	compiler compiler.Compiler
	outDir   string
	timeout  time.Duration
	db       *storage.DB
	log      Logger
}

func (w *worker) process(ctx context.Context, sourceID, name string) (res SourceResult) {
	start := time.Now()
	res = SourceResult{Source: sourceID, Name: name}
	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			w.log.Errorf("%v", res.Err)
		}
	}()

	if name == "" {
		res.Err = stageErr(StageWrite, sourceID, errors.New("cannot derive an output name"))
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	w.log.Debugf("Fetching %s", sourceID)
	content, err := w.fetcher.Fetch(ctx, sourceID)
	if err != nil {
		res.Err = stageErr(StageFetch, sourceID, err)
		return res
	}

	doc, parsed, err := Build(w.parser, w.vocab, sourceID, content)
	if err != nil {
		res.Err = stageErr(StageParse, sourceID, err)
		return res
	}
	res.Grammar = parsed.Grammar
	res.Counts = doc.Counts()
	res.Dropped = parsed.DroppedLogical
	if parsed.DroppedLogical > 0 {
		w.log.Debugf("%s: dropped %d logical rules that cannot be represented", sourceID, parsed.DroppedLogical)
	}

	res.Warnings = rules.Lint(doc)
	for _, warning := range res.Warnings {
		w.log.Warnf("%s: %s", name, warning)
	}

	data, err := canonical.Marshal(doc.Tree())
	if err != nil {
		res.Err = stageErr(StageWrite, sourceID, err)
		return res
	}

	jsonPath := filepath.Join(w.outDir, name+JSONExt)
	if err := writeFileAtomic(jsonPath, data); err != nil {
		res.Err = stageErr(StageWrite, sourceID, err)
		return res
	}
	res.JSONPath = jsonPath

	if w.compiler != nil {
		binPath := filepath.Join(w.outDir, name+BinaryExt)
		if err := w.compiler.Compile(ctx, jsonPath, binPath); err != nil {
			// A failed source leaves no outputs behind, stale ones included.
			removeOutputs(w.log, jsonPath, binPath)
			res.JSONPath = ""
			res.Err = stageErr(StageCompile, sourceID, err)
			return res
		}
		res.BinaryPath = binPath
	}

	if w.db != nil {
		res.Changes = w.recordHistory(ctx, sourceID, name, doc)
	}

	w.log.Infof("Converted %s -> %s", sourceID, jsonPath)
	return res
}

// recordHistory stores the document in the history database. Failures are
// logged and never fail the source.
func (w *worker) recordHistory(ctx context.Context, sourceID, name string, doc rules.Document) []storage.Change {
	entries, err := storage.BuildEntries(sourceID, name, doc)
	if err != nil {
		w.log.Warnf("Could not build history entries for %s: %v", sourceID, err)
		return nil
	}
	changes, err := w.db.UpsertSourceRules(ctx, sourceID, name, entries)
	if err != nil {
		if errors.Is(err, storage.ErrAbortingRuleWipe) {
			w.log.Warnf("%s produced no rules but has history. Skipping history update.", sourceID)
			return nil
		}
		w.log.Warnf("Database error for %s: %v", sourceID, err)
		return nil
	}
	return changes
}

// Build runs parse, normalize and aggregate over fetched content.
func Build(p *parser.Parser, vocab rules.Vocabulary, sourceID string, content []byte) (rules.Document, parser.Result, error) {
	parsed, err := p.Parse(sourceID, content)
	if err != nil {
		return rules.Document{}, parser.Result{}, err
	}
	rows := rules.Normalize(parsed.Rows, vocab)
	return rules.Aggregate(rows, parsed.Logical), parsed, nil
}

func removeOutputs(log Logger, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("Could not remove %s: %v", p, err)
		}
	}
}

// writeFileAtomic writes data next to path and renames it into place so a
// reader never sees a partial document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
