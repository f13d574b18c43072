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

// Package window implements windowing constructs. In the world of data processing on an unbounded stream, Windowing
// is a concept of grouping data using temporal boundaries. We use event-time to discover temporal boundaries on an
// unbounded, infinite stream and Watermark to ensure the datasets within the boundaries are complete. A reduce function
// can be applied on this group of data.
//
// Windows are of different types, quite popular ones are Fixed windows and Sliding windows. Sessions are managed via
// little less popular windowing strategy called Session windows. Windowing is implemented as a two stage process,
//   - Assign windows - assign the event to a set of windows (Fn.AssignWindows)
//   - Merge windows - coalesce the windows that belong together (MergingFn.MergeWindows)
//
// The two stage approach is required because assignment of windows happens as elements are streaming in, but merging
// has to look at every window that is currently open for a key. This is important esp. when we handle session windows
// where a new event can bridge two existing sessions.
//
// Windows are values. Two windows with the same bounds are the same window, so they can be used as map keys. The state
// that belongs to a window is tracked by the reducer, never by the window itself.
package window
