/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package concurrent layers a lock-free propagation pipeline on top of the
// single-writer theta package: many producer goroutines each own a small
// local buffer, and a bounded worker pool merges local snapshots into one
// shared sketch.
package concurrent

import "errors"

// ErrSketchClosed is returned by LocalBuffer updates and by SharedSketch
// propagation once the shared sketch has been closed.
var ErrSketchClosed = errors.New("concurrent: shared sketch is closed")

// Logger receives diagnostic messages from the propagation pipeline. It is
// the only logging surface in this module: the non-concurrent theta package
// carries none, matching its teacher, but the background goroutines
// introduced here are new surface that callers may want visibility into.
type Logger func(format string, args ...any)

func noopLogger(string, ...any) {}
