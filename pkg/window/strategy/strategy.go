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

// Package strategy builds window fns from their declarative configuration.
package strategy

import (
	"fmt"

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
	"github.com/numaproj/numawin/pkg/window"
	"github.com/numaproj/numawin/pkg/window/strategy/fixed"
	"github.com/numaproj/numawin/pkg/window/strategy/global"
	"github.com/numaproj/numawin/pkg/window/strategy/session"
	"github.com/numaproj/numawin/pkg/window/strategy/sliding"
)

// New returns the window fn described by cfg.
func New(cfg dfv1.Window) (window.Fn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		fn  window.Fn
		err error
	)
	switch cfg.GetType() {
	case dfv1.FixedType:
		fn, err = fixed.NewFixed(cfg.Fixed.GetLength().Duration, cfg.Fixed.GetOffset().Duration)
	case dfv1.SlidingType:
		fn, err = sliding.NewSliding(cfg.Sliding.GetLength().Duration, cfg.Sliding.GetSlide().Duration, cfg.Sliding.GetOffset().Duration)
	case dfv1.SessionType:
		fn, err = session.NewSession(cfg.Session.GetTimeout().Duration)
	case dfv1.GlobalType:
		fn = global.NewGlobal()
	default:
		err = fmt.Errorf("unsupported window type %q", cfg.GetType())
	}
	if err != nil {
		return nil, err
	}
	return fn, nil
}
