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

package sio

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// JS renders x as compact JSON.  A value that can't be marshaled is
// rendered with %#v so logs still show something.
func JS(x interface{}) string {
	return marshal(x, "")
}

// marshal is JS with optional indentation.
func marshal(x interface{}, indent string) string {
	var (
		js  []byte
		err error
	)
	if indent == "" {
		js, err = json.Marshal(x)
	} else {
		js, err = json.MarshalIndent(x, "", indent)
	}
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}

// abbrev cuts s to n bytes and marks the cut.
func abbrev(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
