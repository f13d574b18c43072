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

package timers

// Update is the immutable set of timer changes made by one bundle for one key.
type Update struct {
	Key string
	// Set are the timers which are set or replaced.
	Set []TimerData
	// Deleted are the timers which are deleted, only their identity matters.
	Deleted []TimerData
	// Completed are the fired timers which were delivered to the bundle.
	Completed []TimerData
}

// IsEmpty returns true if the update has no changes.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Deleted) == 0 && len(u.Completed) == 0
}

// UpdateBuilder collects the timer changes of a bundle. The last change of a timer wins, a set
// followed by a delete of the same timer is a delete.
type UpdateBuilder struct {
	key       string
	order     []ID
	changes   map[ID]change
	completed []TimerData
}

type change struct {
	timer   TimerData
	deleted bool
}

// NewUpdateBuilder returns an UpdateBuilder for the key.
func NewUpdateBuilder(key string) *UpdateBuilder {
	return &UpdateBuilder{
		key:     key,
		changes: make(map[ID]change),
	}
}

func (b *UpdateBuilder) record(t TimerData, deleted bool) {
	t.Key = b.key
	id := t.ID()
	if _, ok := b.changes[id]; !ok {
		b.order = append(b.order, id)
	}
	b.changes[id] = change{timer: t, deleted: deleted}
}

// SetTimer records a timer to be set.
func (b *UpdateBuilder) SetTimer(t TimerData) *UpdateBuilder {
	b.record(t, false)
	return b
}

// DeleteTimer records a timer to be deleted.
func (b *UpdateBuilder) DeleteTimer(t TimerData) *UpdateBuilder {
	b.record(t, true)
	return b
}

// MarkCompleted records a fired timer as delivered.
func (b *UpdateBuilder) MarkCompleted(t TimerData) *UpdateBuilder {
	t.Key = b.key
	b.completed = append(b.completed, t)
	return b
}

// Build returns the Update. Changes are listed in the order the timers were first touched.
func (b *UpdateBuilder) Build() Update {
	u := Update{Key: b.key}
	for _, id := range b.order {
		c := b.changes[id]
		if c.deleted {
			u.Deleted = append(u.Deleted, c.timer)
		} else {
			u.Set = append(u.Set, c.timer)
		}
	}
	u.Completed = append(u.Completed, b.completed...)
	return u
}
