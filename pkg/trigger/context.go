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
	"strconv"
	"strings"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/timers"
	"github.com/numaproj/numawin/pkg/window"
)

// TimerTagPrefix prefixes the tags of all the timers set by triggers.
const TimerTagPrefix = "trigger"

// Timers is where triggers set and delete their timers, the key is filled in by the implementation.
type Timers interface {
	SetTimer(t timers.TimerData)
	DeleteTimer(t timers.TimerData)
}

// Context is the window and the current time a trigger is evaluated in.
type Context struct {
	Window                     window.Window
	InputWatermark             mtime.Time
	ProcessingTime             mtime.Time
	SynchronizedProcessingTime mtime.Time
	Timers                     Timers
}

// IsTriggerTimer reports whether the timer tag belongs to a trigger.
func IsTriggerTimer(tag string) bool {
	return tag == TimerTagPrefix || strings.HasPrefix(tag, TimerTagPrefix+"/")
}

func childPath(path string, i int) string {
	return path + "/" + strconv.Itoa(i)
}

func (c *Context) endOfWindowPassed() bool {
	return c.InputWatermark > c.Window.MaxTimestamp()
}

func (c *Context) setTimer(path string, domain timers.Domain, ts mtime.Time) {
	if c.Timers == nil {
		return
	}
	c.Timers.SetTimer(timers.TimerData{Window: c.Window, Domain: domain, Timestamp: ts, Tag: path})
}

func (c *Context) deleteTimer(path string, domain timers.Domain) {
	if c.Timers == nil {
		return
	}
	c.Timers.DeleteTimer(timers.TimerData{Window: c.Window, Domain: domain, Tag: path})
}

// forWindow returns a copy of the context evaluated for w.
func (c *Context) forWindow(w window.Window) *Context {
	cc := *c
	cc.Window = w
	return &cc
}
