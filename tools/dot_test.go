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

package tools

import (
	"bytes"
	"strings"
	"testing"
)

func TestDot(t *testing.T) {
	var buf bytes.Buffer
	if err := Dot(testDoc(t), &buf, "ds"); err != nil {
		t.Fatal(err)
	}
	dot := buf.String()

	for _, want := range []string{
		"digraph G {",
		`"home" -> "bar"`,
		`"ds" -> "hello"`,
		`"go" -> "about" [ style="dashed"`,
		`color="red"`,
		"GET https://api.example.com/users/{{url.id}}",
	} {
		if !strings.Contains(dot, want) {
			t.Fatalf("no %q in\n%s", want, dot)
		}
	}
	if strings.Contains(dot, `"lost"`) {
		t.Fatal("orphan drawn")
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Fatal(dot)
	}
}
