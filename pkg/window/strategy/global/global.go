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

// Package global implements the Global window. Every element of a key belongs to the same window, which
// only ends when the input is exhausted. Global windows are typically used with a trigger which fires
// early panes, since the end of the window is never reached in a streaming pipeline.
package global

import (
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
)

// Global assigns every element to window.GlobalWindow.
type Global struct{}

var _ window.Fn = Global{}

// NewGlobal returns the global window fn.
func NewGlobal() Global {
	return Global{}
}

func (Global) Strategy() window.Strategy {
	return window.Global
}

func (Global) AssignWindows(mtime.Time) []window.Window {
	return []window.Window{window.GlobalWindow{}}
}

func (Global) String() string {
	return "Global"
}
