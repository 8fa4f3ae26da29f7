/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package core

import (
	json "github.com/goccy/go-json"
)

// Plain converts x into the kinds of values that JSON decoding makes
// (map[string]interface{}, []interface{}, float64, string, bool, and
// nil), which is what expressions and conditions know how to walk.
// A value that already has that shape is returned as is.
func Plain(x interface{}) (interface{}, error) {
	if isPlain(x) {
		return x, nil
	}
	js, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}

func isPlain(x interface{}) bool {
	switch vv := x.(type) {
	case nil, string, bool, float64:
		return true
	case []interface{}:
		for _, y := range vv {
			if !isPlain(y) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		for _, y := range vv {
			if !isPlain(y) {
				return false
			}
		}
		return true
	}
	return false
}
