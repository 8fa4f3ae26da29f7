/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package core provides the document model for experiences.
//
// An experience is a server-authored, versioned document that
// describes one or more screens.  The primary type is Document, which
// holds a tree of Nodes.  A Node is a tagged union: its Kind says
// which of its payloads (Screen, Layer, DataSource, Conditional,
// NavBar, NavBarButton) is set.
//
// Decode turns JSON into a Document.  Two schemas exist: the classic
// schema ("1") and the current schema ("2").  The current schema
// refers to assets relative to a CDN, so its decoder needs a
// CDNConfig, which the caller must have fetched already.  Decoding
// never performs any IO.
//
// Text in a document can contain expressions (see package expr).
// The scopes an expression sees depend on where its node sits in the
// tree: Enter and Document.ScopesAt compute them.
//
// A Conditional node can carry a script.  Scripts are compiled by an
// Interpreter (see the interpreters packages); the document itself
// stays plain data.
package core
