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

package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
)

func TestFromSpec(t *testing.T) {
	count := uint64(3)
	tests := []struct {
		name     string
		cfg      dfv1.Trigger
		expected string
		wantErr  bool
	}{
		{
			name:     "empty_is_default",
			cfg:      dfv1.Trigger{},
			expected: "Default",
		},
		{
			name: "early_late",
			cfg: dfv1.Trigger{
				Type:  dfv1.AfterWatermarkTriggerType,
				Early: &dfv1.Trigger{Type: dfv1.AfterProcessingTimeTriggerType, Delay: &metav1.Duration{Duration: time.Second}},
				Late:  &dfv1.Trigger{Type: dfv1.AfterCountTriggerType},
			},
			expected: "AfterWatermark(early=AfterProcessingTime(+1s), late=AfterCount(1))",
		},
		{
			name: "repeatedly",
			cfg: dfv1.Trigger{
				Type:     dfv1.RepeatedlyTriggerType,
				Triggers: []dfv1.Trigger{{Type: dfv1.AfterCountTriggerType, Count: &count}},
			},
			expected: "Repeatedly(AfterCount(3))",
		},
		{
			name: "or_finally",
			cfg: dfv1.Trigger{
				Type: dfv1.OrFinallyTriggerType,
				Triggers: []dfv1.Trigger{
					{Type: dfv1.AlwaysTriggerType},
					{Type: dfv1.AfterWatermarkTriggerType},
				},
			},
			expected: "OrFinally(Always, AfterWatermark())",
		},
		{
			name:    "repeatedly_without_child",
			cfg:     dfv1.Trigger{Type: dfv1.RepeatedlyTriggerType},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     dfv1.Trigger{Type: "sometimes"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := FromSpec(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tr.String())
		})
	}
}
