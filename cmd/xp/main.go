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

// Package main is a command-line tool for experience documents.
//
//	xp [flags] fetch URL     Print the decoded document
//	xp [flags] render URL    Run a live session
//	xp [flags] html URL      Write an HTML outline
//	xp [flags] dot URL       Write a Graphviz tree
//	xp [flags] analyze URL   Print an analysis
//	xp [flags] archive       List the archive (see -archive)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Comcast/experiences/interpreters"
	"github.com/Comcast/experiences/store"
	"github.com/Comcast/experiences/store/bolt"
	"github.com/Comcast/experiences/tools"
	"github.com/Comcast/experiences/util"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

func main() {

	var (
		configFile  = flag.String("c", "", "Optional YAML config file")
		verbose     = flag.Bool("v", false, "Verbose")
		help        = flag.Bool("h", false, "Get usage")
		mqttBroker  = flag.String("mqtt", "", "MQTT broker (tcp://HOST:PORT) for renders")
		mqttTopic   = flag.String("topic", "experiences/render", "MQTT topic for renders")
		httpAddr    = flag.String("http", "", "Serve a preview (/ws, /page, /metrics) at this address")
		watch       = flag.Bool("w", false, "Watch a local document and restart the session on change")
		archiveFile = flag.String("archive", "", "BoltDB archive filename")
		offline     = flag.Bool("offline", false, "Use the archive when the network fails")
		domains     = flag.String("domains", "", "Comma-separated authorized domains")
		params      = flag.String("params", "", "URL parameters (JSON object)")
		userInfo    = flag.String("user", "", "userInfo scope (JSON object)")
		device      = flag.String("device", "", "deviceContext scope (JSON object)")
		lenient     = flag.Bool("lenient", false, "Evaluate data source URLs leniently")
		stdin       = flag.Bool("in", true, "Read commands from stdin (render)")
		pretty      = flag.Bool("pretty", false, "Indent JSON output")
		short       = flag.Bool("short", false, "Abbreviate renders")
		snapshot    = flag.String("snapshot", "", "Write the last render to this file")
		highlight   = flag.String("highlight", "", "Node to highlight (dot)")
		png         = flag.String("png", "", "Write PNG to this basename instead of dot to stdout (dot)")
		css         = flag.String("css", "", "Comma-separated CSS URLs (html)")
		withJSON    = flag.Bool("json", false, "Include the document's JSON (html)")
	)

	flag.Parse()

	if *help {
		fmt.Fprintf(os.Stderr, "Usage: xp [flags] COMMAND [URL]\n\nCommands: fetch render html dot analyze archive\n\n")
		flag.PrintDefaults()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("need a command (see -h)")
	}
	cmd := args[0]

	logger, err := util.NewLogger(*verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	conf, err := LoadConfig(*configFile)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	// Flags override the config.
	if *domains != "" {
		conf.Store.AuthorizedDomains = strings.Split(*domains, ",")
	}
	if *offline {
		conf.Store.Offline = true
	}
	if *archiveFile != "" {
		conf.Archive = *archiveFile
	}
	if *httpAddr != "" {
		conf.HTTP = *httpAddr
	}
	if *mqttBroker != "" {
		if conf.MQTT == nil {
			conf.MQTT = DefaultMQTTConf()
		}
		conf.MQTT.Broker = *mqttBroker
		conf.MQTT.Topic = *mqttTopic
	}
	if *lenient {
		conf.Session.LenientURLs = true
	}
	if err = parseFlagJSON(*params, &conf.Session.URLParameters); err != nil {
		logger.Fatal("-params", zap.Error(err))
	}
	if err = parseFlagJSON(*userInfo, &conf.Session.UserInfo); err != nil {
		logger.Fatal("-user", zap.Error(err))
	}
	if err = parseFlagJSON(*device, &conf.Session.DeviceContext); err != nil {
		logger.Fatal("-device", zap.Error(err))
	}
	if err = ValidateConfig(conf); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var archive *bolt.Archive
	if conf.Archive != "" {
		archive = bolt.NewArchive(conf.Archive, logger)
		if err = archive.Open(ctx); err != nil {
			logger.Fatal("archive", zap.String("filename", conf.Archive), zap.Error(err))
		}
		defer archive.Close(context.Background())
	}

	if cmd == "archive" {
		if archive == nil {
			logger.Fatal("archive needs -archive")
		}
		if err = listArchive(ctx, archive, os.Stdout); err != nil {
			logger.Fatal("archive", zap.Error(err))
		}
		return
	}

	if len(args) < 2 {
		logger.Fatal("need a document URL", zap.String("command", cmd))
	}
	ref := args[1]

	if len(conf.Store.AuthorizedDomains) == 0 {
		if host := remoteHost(ref); host != "" {
			logger.Debug("authorizing", zap.String("host", host))
			conf.Store.AuthorizedDomains = []string{host}
		}
	}

	st, err := store.NewStore(&conf.Store, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	st.Metrics = store.NewMetrics("xp")
	if archive != nil {
		st.Archive = archive
	}

	interps := interpreters.Standard(logger)

	if cmd == "render" {
		r := &renderer{
			Conf:         conf,
			Store:        st,
			Interpreters: interps,
			Logger:       logger,
			Watch:        *watch,
			Stdin:        *stdin && !*watch,
			Pretty:       *pretty,
			Short:        *short,
			Snapshot:     *snapshot,
		}
		if err = r.Run(ctx, ref); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("render", zap.Error(err))
		}
		return
	}

	doc, err := st.Fetch(ctx, ref)
	if err != nil {
		logger.Fatal("fetch", zap.String("url", ref), zap.Error(err))
	}

	switch cmd {
	case "fetch":
		err = writeJSON(os.Stdout, doc, *pretty)
	case "html":
		var cssFiles []string
		if *css != "" {
			cssFiles = strings.Split(*css, ",")
		}
		err = tools.RenderDocumentPage(doc, os.Stdout, cssFiles, *withJSON)
	case "dot":
		if *png != "" {
			var filename string
			if filename, err = tools.PNG(doc, *png, *highlight); err == nil {
				fmt.Println(filename)
			}
		} else {
			err = tools.Dot(doc, os.Stdout, *highlight)
		}
	case "analyze":
		var a *tools.DocumentAnalysis
		if a, err = tools.Analyze(ctx, doc, interps); err == nil {
			err = writeJSON(os.Stdout, a, true)
		}
	default:
		err = fmt.Errorf("unknown command '%s'", cmd)
	}
	if err != nil {
		logger.Fatal(cmd, zap.Error(err))
	}
}

// remoteHost gives the host of a remote reference or "" for a local
// one.
func remoteHost(ref string) string {
	if !strings.Contains(ref, "://") || strings.HasPrefix(ref, "file://") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func parseFlagJSON(js string, x interface{}) error {
	if js == "" {
		return nil
	}
	return json.Unmarshal([]byte(js), x)
}

func writeJSON(w io.Writer, x interface{}, pretty bool) error {
	var (
		js  []byte
		err error
	)
	if pretty {
		js, err = json.MarshalIndent(x, "", "  ")
	} else {
		js, err = json.Marshal(x)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", js)
	return err
}

func listArchive(ctx context.Context, a *bolt.Archive, w io.Writer) error {
	es, err := a.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range es {
		fmt.Fprintf(w, "%s\tv%s\t%s\n", e.Fetched.Format(time.RFC3339), e.Version, e.URL)
	}
	return nil
}
