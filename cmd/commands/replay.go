/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/numaproj/numawin"
	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
	"github.com/numaproj/numawin/pkg/metrics"
	"github.com/numaproj/numawin/pkg/reduce/gabw"
	"github.com/numaproj/numawin/pkg/runner"
	"github.com/numaproj/numawin/pkg/shared/clock"
	"github.com/numaproj/numawin/pkg/shared/logging"
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/state"
	"github.com/numaproj/numawin/pkg/watermark/manager"
)

const (
	sourceStage = "source"
	reduceStage = "reduce"
)

// maxRecordSize is the max length of a line of the replay input.
const maxRecordSize = 1024 * 1024

func NewReplayCommand() *cobra.Command {
	var (
		configFile  string
		inputFile   string
		metricsAddr string
		filterExpr  string
		noDrain     bool
		dumpConfig  bool
	)

	command := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded stream through a windowed reduce",
		Long: `Replay reads JSON records, one per line, and prints the emitted panes as JSON, one per line.

A record is one of
  {"key": "k", "value": 1, "timestamp": 1000}   an element
  {"watermark": 1000}                           advances the source watermark
  {"processingTime": 1000}                      advances the processing time clock

Times are milliseconds since epoch or date strings, dates without a zone are UTC.
Processing time starts at 0 and only moves with processingTime records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadReplaySpec(configFile)
			if err != nil {
				return err
			}
			if dumpConfig {
				b, err := yaml.Marshal(spec)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			// stdout carries the panes
			log := logging.NewLoggerWithOutput("stderr").Named("replay")
			v := numawin.GetVersion()
			log.Infow("Starting replay", "version", v)
			metrics.BuildInfo.WithLabelValues(v.Version, v.Platform).Set(1)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			if metricsAddr != "" {
				shutdown := metrics.NewMetricsServer(metrics.WithAddr(metricsAddr)).Start(ctx)
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						log.Errorw("Failed to shutdown metrics server", zap.Error(err))
					}
				}()
			}

			in := cmd.InOrStdin()
			if inputFile != "" && inputFile != "-" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("failed to open input, %w", err)
				}
				defer f.Close()
				in = f
			}
			r, err := newReplayer(ctx, spec, filterExpr, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer r.close()
			return r.replay(ctx, in, !noDrain)
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "", "Path of the YAML or JSON replay configuration")
	command.Flags().StringVarP(&inputFile, "input", "i", "-", "Path of the input records, - for stdin")
	command.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address of the metrics server, disabled if empty")
	command.Flags().StringVar(&filterExpr, "filter", "", "Expression on key, value and timestamp, elements for which it is false are skipped")
	command.Flags().BoolVar(&dumpConfig, "dump-config", false, "Print the effective configuration as YAML and exit")
	command.Flags().BoolVar(&noDrain, "no-drain", false, "Do not advance the watermark to the end of time at the end of the input")
	return command
}

// loadReplaySpec reads the configuration file, an empty path is the default configuration.
func loadReplaySpec(path string) (*dfv1.ReplaySpec, error) {
	spec := &dfv1.ReplaySpec{}
	if path == "" {
		return spec, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s, %w", path, err)
	}
	// viper lower cases the keys, the decoder matches the field names case insensitively.
	b, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, spec); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s, %w", path, err)
	}
	return spec, nil
}

type replayer struct {
	clock   *clock.Fake
	manager *manager.Manager
	store   state.Store
	runner  *runner.Runner
	// convert turns a decoded JSON value in to the input type of the reducer
	convert func(any) (any, error)
	filter  *filter
	out     io.Writer
	outLock sync.Mutex
	panes   int
	log     *zap.SugaredLogger
}

func newReplayer(ctx context.Context, spec *dfv1.ReplaySpec, filterExpr string, out io.Writer) (*replayer, error) {
	strategy, err := gabw.StrategyFromSpec(spec.Reduce.Strategy)
	if err != nil {
		return nil, fmt.Errorf("invalid windowing strategy, %w", err)
	}
	f, err := newFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	r := &replayer{
		clock:  clock.NewFake(0),
		filter: f,
		out:    out,
		log:    logging.FromContext(ctx),
	}
	r.manager = manager.New(ctx, r.clock, manager.WithPipelineName("replay"))
	r.store = state.NewInMemStore(ctx, "replay", 0)

	var processor runner.Processor
	switch spec.Reduce.GetCombine() {
	case dfv1.CountCombine:
		processor, err = reduceProcessor[any, int64, int64](strategy, gabw.Count[any]{}, r.store)
		r.convert = identity
	case dfv1.SumCombine:
		processor, err = reduceProcessor[float64, float64, float64](strategy, gabw.Sum[float64]{}, r.store)
		r.convert = toNumber
	default:
		processor, err = reduceProcessor[any, []any, []any](strategy, gabw.Buffering[any]{}, r.store)
		r.convert = identity
	}
	if err != nil {
		return nil, err
	}

	opts := append(runner.FromSpec(spec.Runner), runner.WithClock(r.clock), runner.WithOutputHandler(r.write))
	if r.runner, err = runner.New(ctx, r.manager, r.store, opts...); err != nil {
		return nil, err
	}
	if err := r.runner.AddSource(sourceStage); err != nil {
		return nil, err
	}
	if err := r.runner.AddStage(reduceStage, processor, sourceStage); err != nil {
		return nil, err
	}
	return r, nil
}

func reduceProcessor[IN, ACC, OUT any](strategy gabw.Strategy, fn gabw.CombineFn[IN, ACC, OUT], store state.Store) (runner.Processor, error) {
	r, err := gabw.New[IN, ACC, OUT](strategy, fn, state.JSONCoder[ACC]{}, store, gabw.WithStageName(reduceStage))
	if err != nil {
		return nil, err
	}
	return runner.NewReduceProcessor(r), nil
}

func identity(v any) (any, error) {
	return v, nil
}

func toNumber(v any) (any, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("sum needs numeric values, got %T", v)
	}
	return f, nil
}

// write prints the panes, it is called concurrently by the bundles.
func (r *replayer) write(_ context.Context, _ string, outputs []runner.Element) error {
	r.outLock.Lock()
	defer r.outLock.Unlock()
	for _, o := range outputs {
		b, err := json.Marshal(o.Value)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(r.out, string(b)); err != nil {
			return err
		}
		r.panes++
	}
	return nil
}

func (r *replayer) apply(rec record) error {
	if rec.ProcessingTime != nil {
		r.clock.AdvanceTo(mtime.Time(*rec.ProcessingTime))
	}
	if rec.Key != nil {
		if err := r.inject(*rec.Key, rec.Value, rec.Timestamp); err != nil {
			return err
		}
	}
	if rec.Watermark != nil {
		if err := r.runner.AdvanceSourceWatermark(sourceStage, mtime.Time(*rec.Watermark)); err != nil {
			return err
		}
	}
	return nil
}

func (r *replayer) inject(key string, value any, ts *recordTime) error {
	if ts == nil {
		return fmt.Errorf("element of key %q has no timestamp", key)
	}
	keep, err := r.filter.keep(key, value, mtime.Time(*ts))
	if err != nil || !keep {
		return err
	}
	v, err := r.convert(value)
	if err != nil {
		return fmt.Errorf("element of key %q, %w", key, err)
	}
	return r.runner.Inject(sourceStage, runner.Element{Key: key, Value: v, Timestamp: mtime.Time(*ts)})
}

// replay applies the records one by one, running the pipeline until idle after every record.
func (r *replayer) replay(ctx context.Context, in io.Reader, drain bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("line %d, %w", line, err)
		}
		if err := r.apply(rec); err != nil {
			return fmt.Errorf("line %d, %w", line, err)
		}
		if err := r.runner.RunUntilIdle(ctx); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input, %w", err)
	}
	if drain {
		if err := r.runner.AdvanceSourceWatermark(sourceStage, mtime.MaxTimestamp); err != nil {
			return err
		}
		if err := r.runner.RunUntilIdle(ctx); err != nil {
			return err
		}
	}
	r.log.Infow("Replay finished", zap.Int("records", line), zap.Int("panes", r.panes),
		zap.Int64("bundles", r.runner.Processed()), zap.Bool("done", r.runner.IsDone()))
	return nil
}

func (r *replayer) close() {
	if err := r.runner.Close(); err != nil {
		r.log.Errorw("Failed to close runner", zap.Error(err))
	}
	if err := r.manager.Close(); err != nil {
		r.log.Errorw("Failed to close watermark manager", zap.Error(err))
	}
	if err := r.store.Close(); err != nil {
		r.log.Errorw("Failed to close state store", zap.Error(err))
	}
}
