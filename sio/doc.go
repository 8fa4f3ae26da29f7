/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sio runs live renders of experience documents.
//
// A Session renders one screen of a core.Document at a time.  All
// evaluation and all refresher state changes happen on the goroutine
// that runs Session.Loop.  Data source fetches run on their own
// goroutines and post their results back to that loop, which drops
// results that are no longer wanted.
//
// Every render is sent to Session.Out.  Pump forwards renders to
// Couplings (stdout, MQTT, WebSockets) and forwards Commands from
// couplings that can send them.
package sio
