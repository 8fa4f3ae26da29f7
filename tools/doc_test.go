package tools

import (
	"testing"

	"github.com/Comcast/experiences/core"
)

var testDocJS = `{
  "version": "2",
  "id": "exp",
  "name": "Welcome <home>",
  "initialScreenID": "home",
  "screenIDs": ["home", "about"],
  "nodes": [
    {"__typeName": "Screen", "id": "home", "childIDs": ["bar", "ds"]},
    {"__typeName": "NavBar", "id": "bar", "title": "Hi {{user.firstName}}", "childIDs": ["done"]},
    {"__typeName": "NavBarButton", "id": "done", "action": {"type": "close"}},
    {"__typeName": "DataSource", "id": "ds", "url": "https://api.example.com/users/{{url.id}}",
     "httpMethod": "GET", "pollInterval": 30, "childIDs": ["hello", "items"]},
    {"__typeName": "Text", "id": "hello", "text": "**Hello** {{data.name}}"},
    {"__typeName": "Collection", "id": "items", "keyPath": "data.items", "childIDs": ["more"]},
    {"__typeName": "DataSource", "id": "more", "url": "https://api.example.com/items/{{data.id}}",
     "httpMethod": "GET", "childIDs": ["cond"]},
    {"__typeName": "Conditional", "id": "cond", "childIDs": ["go"],
     "conditions": [{"keyPath": "data.vip", "predicate": "isTrue"}],
     "script": {"interpreter": "goja", "source": "return true;"}},
    {"__typeName": "Button", "id": "go", "text": "About",
     "action": {"type": "navigateToScreen", "screenID": "about"}},
    {"__typeName": "Screen", "id": "about"},
    {"__typeName": "Spacer", "id": "lost"}
  ]
}`

func testDoc(t *testing.T) *core.Document {
	d, err := core.Decode([]byte(testDocJS), "2", &core.CDNConfig{
		AssetBaseURL: "https://cdn.example.com/",
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}
