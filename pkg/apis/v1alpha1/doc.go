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

// Package v1alpha1 contains the declarative configuration of a windowed reduce: the windowing strategy,
// the trigger tree, and the runtime settings of the bundle runner. The types are plain JSON/YAML structs,
// optional fields are pointers and every optional field has a Get* accessor which applies the default.
package v1alpha1
