// Package plugin is the SDK for jobwatch channel plugins.
//
// A channel plugin is a standalone executable speaking JSON-RPC on
// stdin/stdout. The daemon starts one process per configured channel, pushes
// the channel config via SetConfig and then delivers notifications with
// SendNotification. Anything a plugin writes to stderr ends up in the
// daemon's log.
package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jobwatch/jobwatch/pkg/rpc"
)

// Methods a plugin has to answer.
const (
	MethodGetInfo          = "GetInfo"
	MethodSetConfig        = "SetConfig"
	MethodSendNotification = "SendNotification"
)

// Info describes a plugin to the daemon.
type Info struct {
	Name    string `json:"display_name"`
	Version string `json:"version"`
}

// Posting is the matched job posting of a notification.
type Posting struct {
	ID      int64     `json:"id"`
	URL     string    `json:"url"`
	Author  string    `json:"author"`
	Time    time.Time `json:"time"`
	Tags    []string  `json:"tags"`
	Excerpt string    `json:"excerpt"`
	Text    string    `json:"text"`
}

// Thread is the hiring thread the posting was found in.
type Thread struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Subscription identifies whose filter matched and where to deliver.
type Subscription struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Filter    string `json:"filter"`
	Recipient string `json:"recipient"`
}

// NotificationRequest is the parameter of MethodSendNotification.
type NotificationRequest struct {
	Posting      *Posting      `json:"posting"`
	Thread       *Thread       `json:"thread"`
	Subscription *Subscription `json:"subscription"`
}

// Plugin is implemented by every channel plugin binary.
type Plugin interface {
	GetInfo() *Info
	SetConfig(jsonStr json.RawMessage) error
	SendNotification(req *NotificationRequest) error
}

// RunPlugin serves the plugin on stdin/stdout until the daemon closes stdin.
func RunPlugin(plugin Plugin) {
	encoder := json.NewEncoder(os.Stdout)
	decoder := json.NewDecoder(os.Stdin)
	var encoderMu sync.Mutex

	for {
		var req rpc.Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				// plugin shutdown requested
				return
			}

			log.Fatalln("cannot read request:", err)
		}

		go func(request rpc.Request) {
			response := rpc.Response{ID: request.ID}
			switch request.Method {
			case MethodGetInfo:
				result, err := json.Marshal(plugin.GetInfo())
				if err != nil {
					response.Error = fmt.Errorf("cannot collect plugin info: %w", err).Error()
				} else {
					response.Result = result
				}

			case MethodSetConfig:
				if err := plugin.SetConfig(request.Params); err != nil {
					response.Error = fmt.Errorf("cannot set plugin config: %w", err).Error()
				}

			case MethodSendNotification:
				var nr NotificationRequest
				if err := json.Unmarshal(request.Params, &nr); err != nil {
					response.Error = fmt.Errorf("cannot unmarshal notification request: %w", err).Error()
				} else if err := plugin.SendNotification(&nr); err != nil {
					response.Error = err.Error()
				}

			default:
				response.Error = fmt.Sprintf("unknown method: %q", request.Method)
			}

			encoderMu.Lock()
			err := encoder.Encode(response)
			encoderMu.Unlock()
			if err != nil {
				panic(fmt.Errorf("cannot write response: %w", err))
			}
		}(req)
	}
}

// FormatMessage renders the plain text body shared by text-centric channels.
func FormatMessage(writer io.Writer, req *NotificationRequest) {
	_, _ = fmt.Fprintf(writer, "%s: new matching posting\n\n", req.Subscription.Name)
	_, _ = fmt.Fprintf(writer, "%s\n\n", req.Posting.Excerpt)
	_, _ = fmt.Fprintf(writer, "By:     %s\n", req.Posting.Author)
	_, _ = fmt.Fprintf(writer, "Posted: %s\n", req.Posting.Time.Format("2006-01-02 15:04:05 MST"))

	if len(req.Posting.Tags) > 0 {
		_, _ = fmt.Fprintf(writer, "Tags:   %s\n", strings.Join(req.Posting.Tags, ", "))
	}

	_, _ = fmt.Fprintf(writer, "\n%s\n", req.Posting.URL)
	_, _ = fmt.Fprintf(writer, "\nThread: %s\n%s\n", req.Thread.Title, req.Thread.URL)
}
