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

// Package timers contains the per key timer facility. Timers are set and deleted while a bundle is
// processed, the changes are collected by an UpdateBuilder and handed to the watermark manager as a
// single Update when the bundle commits.
package timers

import (
	"fmt"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
)

// Domain is the time domain a timer fires in.
type Domain int

const (
	// EventTime timers fire when the input watermark passes their timestamp.
	EventTime Domain = iota
	// ProcessingTime timers fire when the clock passes their timestamp.
	ProcessingTime
	// SynchronizedProcessingTime timers fire when the slowest upstream processing time passes their timestamp.
	SynchronizedProcessingTime
)

func (d Domain) String() string {
	switch d {
	case EventTime:
		return "EventTime"
	case ProcessingTime:
		return "ProcessingTime"
	case SynchronizedProcessingTime:
		return "SynchronizedProcessingTime"
	default:
		return "Unknown"
	}
}

// TimerData is a timer of a key and window. Setting a timer with the same ID replaces the prior one.
type TimerData struct {
	Key       string        `json:"key"`
	Window    window.Window `json:"-"`
	Domain    Domain        `json:"domain"`
	Timestamp mtime.Time    `json:"timestamp"`
	Tag       string        `json:"tag"`
}

// ID identifies a timer, the timestamp is not part of the identity.
type ID struct {
	Key    string
	Window window.Window
	Domain Domain
	Tag    string
}

// ID returns the identity of the timer.
func (t TimerData) ID() ID {
	return ID{Key: t.Key, Window: t.Window, Domain: t.Domain, Tag: t.Tag}
}

func (t TimerData) String() string {
	return fmt.Sprintf("Timer(key=%s, window=%s, domain=%s, ts=%s, tag=%s)", t.Key, t.Window, t.Domain, t.Timestamp, t.Tag)
}

// StageWatermarks is the read only view of the watermarks of the stage a bundle runs in.
type StageWatermarks interface {
	InputWatermark() mtime.Time
	OutputWatermark() mtime.Time
	SynchronizedProcessingInputTime() mtime.Time
	SynchronizedProcessingOutputTime() mtime.Time
}
