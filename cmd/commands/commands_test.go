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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
)

func Test_Commands(t *testing.T) {
	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, b.String(), "Available Commands")
		assert.Contains(t, b.String(), "replay")
	})

	t.Run("version", func(t *testing.T) {
		b := bytes.NewBufferString("")
		cmd := NewVersionCommand()
		cmd.SetOut(b)
		require.NoError(t, cmd.Execute())
		assert.Contains(t, b.String(), "Version: ")
	})

	t.Run("replay flags", func(t *testing.T) {
		cmd := NewReplayCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "replay", cmd.Use)
		assert.Equal(t, "string", cmd.Flag("config").Value.Type())
		assert.Equal(t, "string", cmd.Flag("input").Value.Type())
		assert.Equal(t, "string", cmd.Flag("metrics-addr").Value.Type())
		assert.Equal(t, "bool", cmd.Flag("no-drain").Value.Type())
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadReplaySpec(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		spec, err := loadReplaySpec("")
		require.NoError(t, err)
		assert.Equal(t, dfv1.BufferCombine, spec.Reduce.GetCombine())
		assert.Equal(t, dfv1.GlobalType, spec.Reduce.Strategy.Window.GetType())
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "replay.yaml", `
reduce:
  combine: sum
  strategy:
    window:
      session:
        timeout: 30s
    allowedLateness: 1m
    accumulationMode: accumulating
    trigger:
      type: repeatedly
      triggers:
        - type: afterCount
          count: 2
runner:
  partitions: 2
  maxBundleSize: 10
  retryStrategy:
    backoff:
      interval: 1s
      steps: 3
`)
		spec, err := loadReplaySpec(path)
		require.NoError(t, err)
		assert.Equal(t, dfv1.SumCombine, spec.Reduce.GetCombine())
		assert.Equal(t, dfv1.SessionType, spec.Reduce.Strategy.Window.GetType())
		assert.Equal(t, 30*time.Second, spec.Reduce.Strategy.Window.Session.GetTimeout().Duration)
		assert.Equal(t, time.Minute, spec.Reduce.Strategy.GetAllowedLateness())
		assert.Equal(t, dfv1.AccumulatingMode, spec.Reduce.Strategy.GetAccumulationMode())
		trigger := spec.Reduce.Strategy.GetTrigger()
		assert.Equal(t, dfv1.RepeatedlyTriggerType, trigger.GetType())
		require.Len(t, trigger.Triggers, 1)
		assert.Equal(t, uint64(2), trigger.Triggers[0].GetCount())
		assert.Equal(t, 2, spec.Runner.GetPartitions())
		assert.Equal(t, 10, spec.Runner.GetMaxBundleSize())
		assert.Equal(t, dfv1.DefaultWorkers, spec.Runner.GetWorkers())
		assert.Equal(t, 3, spec.Runner.RetryStrategy.GetBackoff().Steps)
		assert.Equal(t, time.Second, spec.Runner.RetryStrategy.GetBackoff().Duration)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadReplaySpec(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

type pane struct {
	Key    string         `json:"key"`
	Window map[string]any `json:"window"`
	Pane   struct {
		Index  int64  `json:"index"`
		Timing string `json:"timing"`
		IsLast bool   `json:"isLast"`
	} `json:"pane"`
	Value     any   `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

func runReplay(t *testing.T, config, input string, extraArgs ...string) ([]pane, error) {
	t.Helper()
	out := bytes.NewBufferString("")
	cmd := NewReplayCommand()
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(input))
	args := []string{"--config", writeFile(t, "replay.yaml", config)}
	cmd.SetArgs(append(args, extraArgs...))
	err := cmd.Execute()
	var panes []pane
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var p pane
		require.NoError(t, json.Unmarshal([]byte(line), &p))
		panes = append(panes, p)
	}
	return panes, err
}

func TestReplay_FixedCount(t *testing.T) {
	panes, err := runReplay(t, `
reduce:
  combine: count
  strategy:
    window:
      fixed:
        length: 10ms
`, `{"key": "a", "value": 1, "timestamp": 1}
{"key": "a", "value": 1, "timestamp": 5}
# comment
{"key": "b", "value": 1, "timestamp": 12}
{"watermark": 10}
`)
	require.NoError(t, err)
	require.Len(t, panes, 2)
	// the first pane is emitted once the watermark passed the window, the second at the end of the input
	assert.Equal(t, "a", panes[0].Key)
	assert.Equal(t, float64(2), panes[0].Value)
	assert.Equal(t, float64(0), panes[0].Window["start"])
	assert.Equal(t, float64(10), panes[0].Window["end"])
	assert.Equal(t, int64(9), panes[0].Timestamp)
	assert.Equal(t, "ON_TIME", panes[0].Pane.Timing)
	assert.Equal(t, "b", panes[1].Key)
	assert.Equal(t, float64(1), panes[1].Value)
}

func TestReplay_NoDrain(t *testing.T) {
	panes, err := runReplay(t, `
reduce:
  strategy:
    window:
      fixed:
        length: 10ms
`, `{"key": "a", "value": "x", "timestamp": 1}
{"key": "a", "value": "y", "timestamp": 15}
{"watermark": 10}
`, "--no-drain")
	require.NoError(t, err)
	require.Len(t, panes, 1)
	assert.Equal(t, []any{"x"}, panes[0].Value)
}

func TestReplay_ProcessingTimeTrigger(t *testing.T) {
	panes, err := runReplay(t, `
reduce:
  combine: sum
  strategy:
    accumulationMode: accumulating
    trigger:
      type: repeatedly
      triggers:
        - type: afterProcessingTime
          delay: 5ms
`, `{"key": "a", "value": 1.5, "timestamp": 1}
{"processingTime": 6}
{"key": "a", "value": 2, "timestamp": 2}
{"processingTime": 12}
`, "--no-drain")
	require.NoError(t, err)
	require.Len(t, panes, 2)
	assert.Equal(t, 1.5, panes[0].Value)
	assert.Equal(t, "EARLY", panes[0].Pane.Timing)
	assert.Equal(t, 3.5, panes[1].Value)
	assert.Equal(t, int64(1), panes[1].Pane.Index)
}

func TestReplay_Errors(t *testing.T) {
	_, err := runReplay(t, "reduce:\n  combine: sum\n", `{"key": "a", "value": "x", "timestamp": 1}`)
	assert.ErrorContains(t, err, "sum needs numeric values")

	_, err = runReplay(t, "", `{"key": "a", "value": 1}`)
	assert.ErrorContains(t, err, "has no timestamp")

	_, err = runReplay(t, "", `not json`)
	assert.ErrorContains(t, err, "line 1")

	_, err = runReplay(t, "reduce:\n  strategy:\n    window:\n      fixed:\n        length: 0s\n", "")
	assert.ErrorContains(t, err, "invalid windowing strategy")
}

func TestReplay_DatesAndFilter(t *testing.T) {
	panes, err := runReplay(t, `
reduce:
  combine: count
  strategy:
    window:
      fixed:
        length: 1h
`, `{"key": "a", "value": 1, "timestamp": "2024-03-01T10:15:00Z"}
{"key": "b", "value": 1, "timestamp": "2024-03-01 10:20:00"}
{"key": "a", "value": 1, "timestamp": 1709288400000}
{"watermark": "2024-03-01T11:00:00Z"}
`, "--filter", `key != "b"`, "--no-drain")
	require.NoError(t, err)
	require.Len(t, panes, 1)
	assert.Equal(t, "a", panes[0].Key)
	assert.Equal(t, float64(2), panes[0].Value)
	assert.Equal(t, float64(1709287200000), panes[0].Window["start"])
}

func TestReplay_DumpConfig(t *testing.T) {
	out := bytes.NewBufferString("")
	cmd := NewReplayCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--dump-config", "--config", writeFile(t, "replay.yaml", "runner:\n  workers: 3\n")})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "workers: 3")
}

func TestFilter(t *testing.T) {
	f, err := newFilter("")
	require.NoError(t, err)
	keep, err := f.keep("a", 1, 0)
	require.NoError(t, err)
	assert.True(t, keep)

	f, err = newFilter(`key == "a" && timestamp > 10`)
	require.NoError(t, err)
	keep, err = f.keep("a", 1, 11)
	require.NoError(t, err)
	assert.True(t, keep)
	keep, err = f.keep("a", 1, 10)
	require.NoError(t, err)
	assert.False(t, keep)

	f, err = newFilter(`key`)
	require.NoError(t, err)
	_, err = f.keep("a", 1, 0)
	assert.ErrorContains(t, err, "expected bool")

	_, err = newFilter(`key ==`)
	assert.Error(t, err)
}
